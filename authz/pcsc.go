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

package authz

import (
	"fmt"
	"sync"
	"time"

	pcsc "github.com/gballet/go-libpcsclite"
	"github.com/status-im/keycard-go"
	"github.com/status-im/keycard-go/globalplatform"

	"imgcommit/internal/log"
)

// refreshInterval is how often the hub re-enumerates PCSC readers to
// notice a card being inserted or removed.
const refreshInterval = 3 * time.Second

// CardHub watches the system's PCSC readers for an operator keycard,
// registering its instance public key with an Authorizer for as long
// as the card stays seated in the reader.
type CardHub struct {
	az      *Authorizer
	context *pcsc.Context

	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	present map[string][]byte // reader name -> registered pubkey
}

// NewCardHub establishes a PCSC context and begins polling for
// readers. Call Close to release the context and stop polling.
func NewCardHub(az *Authorizer) (*CardHub, error) {
	ctx, err := pcsc.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("authz: establish pcsc context: %w", err)
	}
	h := &CardHub{
		az:      az,
		context: ctx,
		quit:    make(chan struct{}),
		present: make(map[string][]byte),
	}
	h.wg.Add(1)
	go h.loop()
	return h, nil
}

// Close stops the polling loop and releases the PCSC context.
func (h *CardHub) Close() error {
	close(h.quit)
	h.wg.Wait()
	return h.context.Release()
}

func (h *CardHub) loop() {
	defer h.wg.Done()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		h.refresh()
		select {
		case <-ticker.C:
		case <-h.quit:
			return
		}
	}
}

func (h *CardHub) refresh() {
	readers, err := h.context.ListReaders()
	if err != nil {
		log.Warn("authz: list pcsc readers failed", "err", err)
		return
	}
	seen := make(map[string]bool, len(readers))
	for _, reader := range readers {
		seen[reader] = true
		h.mu.Lock()
		_, known := h.present[reader]
		h.mu.Unlock()
		if known {
			continue
		}
		pubkey, err := h.enroll(reader)
		if err != nil {
			log.Trace("authz: no usable card in reader", "reader", reader, "err", err)
			continue
		}
		h.mu.Lock()
		h.present[reader] = pubkey
		h.mu.Unlock()
		log.Info("authz: registered operator card", "reader", reader)
	}

	h.mu.Lock()
	for reader, pubkey := range h.present {
		if !seen[reader] {
			delete(h.present, reader)
			h.az.Revoke(pubkey)
			log.Info("authz: operator card removed", "reader", reader)
		}
	}
	h.mu.Unlock()
}

// enroll connects to the card seated in reader, selects the keycard
// applet, and registers its instance public key as an authorized
// signer.
func (h *CardHub) enroll(reader string) ([]byte, error) {
	card, err := h.context.Connect(reader, pcsc.ShareShared, pcsc.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	channel, err := globalplatform.NewPCSCChannel(card)
	if err != nil {
		card.Disconnect(pcsc.LeaveCard)
		return nil, fmt.Errorf("open channel: %w", err)
	}
	cmdSet := keycard.NewCommandSet(channel)

	if err := cmdSet.Select(); err != nil {
		card.Disconnect(pcsc.LeaveCard)
		return nil, fmt.Errorf("select applet: %w", err)
	}
	if cmdSet.ApplicationInfo == nil || !cmdSet.ApplicationInfo.Installed {
		card.Disconnect(pcsc.LeaveCard)
		return nil, fmt.Errorf("keycard applet not initialized")
	}

	pubkey := cmdSet.ApplicationInfo.InstancePublicKey
	if err := h.az.Allow(pubkey); err != nil {
		card.Disconnect(pcsc.LeaveCard)
		return nil, fmt.Errorf("register pubkey: %w", err)
	}
	// Signing leaves the secure channel open for the lifetime of the
	// job's RPC call rather than here, so the card is left connected
	// and is only torn down when it's physically removed.
	return pubkey, nil
}
