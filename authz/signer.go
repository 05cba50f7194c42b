// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package authz checks commit_start signatures against a configured
// allow-list of operator keys: Verify accepts a signature over the
// request's (active, top, base, device) tuple from a registered key.
// The rpc handler does not call Verify.
package authz

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec"
)

// Authorizer holds the set of public keys allowed to authorize a
// commit_start request.
type Authorizer struct {
	mu   sync.RWMutex
	keys map[string]*btcec.PublicKey // hex-encoded compressed pubkey -> key
}

// New returns an empty Authorizer.
func New() *Authorizer {
	return &Authorizer{keys: make(map[string]*btcec.PublicKey)}
}

// Allow registers pubKey (33-byte compressed SEC1 encoding) as
// authorized.
func (a *Authorizer) Allow(pubKey []byte) error {
	key, err := btcec.ParsePubKey(pubKey, btcec.S256())
	if err != nil {
		return fmt.Errorf("authz: parse pubkey: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[fmt.Sprintf("%x", key.SerializeCompressed())] = key
	return nil
}

// Revoke removes a previously allowed key.
func (a *Authorizer) Revoke(pubKey []byte) {
	id := fmt.Sprintf("%x", pubKey)
	if key, err := btcec.ParsePubKey(pubKey, btcec.S256()); err == nil {
		id = fmt.Sprintf("%x", key.SerializeCompressed())
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, id)
}

// Digest hashes the fields of a commit_start request into the message
// the caller's key must sign.
func Digest(active, top, base, device string) [32]byte {
	h := sha256.New()
	for _, s := range []string{active, top, base, device} {
		h.Write([]byte(s))
		h.Write([]byte{0}) // field separator, avoids ("ab","c") == ("a","bc") collisions
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether sig (DER-encoded) over Digest(...) was
// produced by any currently allowed key.
func (a *Authorizer) Verify(digest [32]byte, sig []byte) bool {
	parsed, err := btcec.ParseDERSignature(sig, btcec.S256())
	if err != nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, key := range a.keys {
		if parsed.Verify(digest[:], key) {
			return true
		}
	}
	return false
}
