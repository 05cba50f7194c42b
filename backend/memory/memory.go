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

// Package memory is an in-memory chain.Adapter used by the commit
// engine's own test suite and by the property-based tests; it is not a
// production backend.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	bloomfilter "github.com/holiman/bloomfilter/v2"

	"imgcommit/chain"
)

// Layer is one node of an in-memory image chain.
type Layer struct {
	name    string
	backing *Layer // nil for the root layer

	mu        sync.Mutex
	data      []byte
	allocated map[int64]bool // sector -> allocated by this layer
	flags     chain.OpenFlags
	ioStatus  bool
}

func (l *Layer) String() string { return l.name }

// NewLayer creates a layer of the given size, backed by parent (nil
// for a root image).
func NewLayer(name string, parent *Layer, size int64) *Layer {
	return &Layer{
		name:      name,
		backing:   parent,
		data:      make([]byte, size),
		allocated: make(map[int64]bool),
		flags:     chain.ReadWrite,
		ioStatus:  true,
	}
}

// Seed marks sectors [sector, sector+n) as allocated by l and fills
// them with data, simulating pre-existing on-disk content at test
// setup, bypassing the adapter surface.
func (l *Layer) Seed(sector int64, n int, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	off := sector * chain.SectorSize
	copy(l.data[off:off+int64(n)*chain.SectorSize], data)
	for s := sector; s < sector+int64(n); s++ {
		l.allocated[s] = true
	}
}

// SetReadOnly marks l as currently opened read-only, for exercising
// the Start-time reopen-widening path.
func (l *Layer) SetReadOnly() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flags = chain.ReadOnly
}

// SetIOStatusEnabled toggles whether l reports as having io-status
// reporting enabled, for exercising InvalidParameterCombination.
func (l *Layer) SetIOStatusEnabled(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ioStatus = v
}

// ReadThrough logically reads n sectors starting at sector, falling
// through the chain from l towards the root, the way a running
// workload would see the volume.
func (l *Layer) ReadThrough(sector int64, n int) []byte {
	out := make([]byte, n*chain.SectorSize)
	for i := 0; i < n; i++ {
		s := sector + int64(i)
		for cur := l; cur != nil; cur = cur.backing {
			cur.mu.Lock()
			ok := cur.allocated[s]
			if ok {
				off := s * chain.SectorSize
				copy(out[i*chain.SectorSize:(i+1)*chain.SectorSize], cur.data[off:off+chain.SectorSize])
			}
			cur.mu.Unlock()
			if ok {
				break
			}
		}
	}
	return out
}

// Backend is a process-local chain.Adapter over Layer chains.
type Backend struct {
	// seenWrites is a best-effort bloom filter over (layer, sector)
	// pairs the engine has already written once. It is purely a
	// diagnostic: false positives just over-count, and nothing in the
	// adapter's control flow depends on it (see SPEC_FULL.md §3.1).
	seenWrites    *bloomfilter.Filter
	duplicateHits int64
}

// New returns an empty Backend.
func New() *Backend {
	f, _ := bloomfilter.New(1<<20, 4)
	return &Backend{seenWrites: f}
}

// DuplicateWriteHits estimates how many sectors the engine wrote more
// than once across the lifetime of this backend — a sign of a
// livelocked retry loop rather than a correctness guarantee.
func (b *Backend) DuplicateWriteHits() int64 {
	return atomic.LoadInt64(&b.duplicateHits)
}

func writeKey(l *Layer, sector int64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(l.name))
	var s [8]byte
	for i := range s {
		s[i] = byte(sector >> (8 * i))
	}
	h.Write(s[:])
	return h.Sum64()
}

func (b *Backend) Length(_ context.Context, layer chain.Layer) (int64, error) {
	l := layer.(*Layer)
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.data)), nil
}

func (b *Backend) Truncate(_ context.Context, layer chain.Layer, n int64) error {
	l := layer.(*Layer)
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= int64(len(l.data)) {
		l.data = l.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, l.data)
	l.data = grown
	return nil
}

func (b *Backend) ReadAt(_ context.Context, layer chain.Layer, sector int64, n int, buf []byte) error {
	l := layer.(*Layer)
	l.mu.Lock()
	defer l.mu.Unlock()
	off := sector * chain.SectorSize
	end := off + int64(n)*chain.SectorSize
	if end > int64(len(l.data)) {
		return fmt.Errorf("memory: read past end: %w", chain.ErrEIO)
	}
	copy(buf, l.data[off:end])
	return nil
}

func (b *Backend) WriteAt(_ context.Context, layer chain.Layer, sector int64, n int, buf []byte) error {
	l := layer.(*Layer)
	l.mu.Lock()
	defer l.mu.Unlock()
	off := sector * chain.SectorSize
	end := off + int64(n)*chain.SectorSize
	if end > int64(len(l.data)) {
		return fmt.Errorf("memory: write past end: %w", chain.ErrEIO)
	}
	copy(l.data[off:end], buf[:n*chain.SectorSize])
	for s := sector; s < sector+int64(n); s++ {
		l.allocated[s] = true
		key := writeKey(l, s)
		if b.seenWrites.Contains(key) {
			atomic.AddInt64(&b.duplicateHits, 1)
		} else {
			b.seenWrites.Add(key)
		}
	}
	return nil
}

func (b *Backend) IsAllocatedAbove(_ context.Context, top, base chain.Layer, sector int64, nReq int) (chain.AllocState, int, error) {
	t, ba := top.(*Layer), base.(*Layer)

	stateAt := func(s int64) bool {
		for cur := t; cur != nil && cur != ba; cur = cur.backing {
			cur.mu.Lock()
			ok := cur.allocated[s]
			cur.mu.Unlock()
			if ok {
				return true
			}
		}
		return false
	}

	first := stateAt(sector)
	n := 1
	for n < nReq && stateAt(sector+int64(n)) == first {
		n++
	}
	if first {
		return chain.Allocated, n, nil
	}
	return chain.NotAllocated, n, nil
}

func (b *Backend) FindOverlay(_ context.Context, active, top chain.Layer) (chain.Layer, bool) {
	a, t := active.(*Layer), top.(*Layer)
	for cur := a; cur != nil; cur = cur.backing {
		if cur.backing == t {
			return cur, true
		}
	}
	return nil, false
}

func (b *Backend) GetFlags(_ context.Context, layer chain.Layer) (chain.OpenFlags, error) {
	l := layer.(*Layer)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flags, nil
}

func (b *Backend) ReopenMultiple(_ context.Context, queue []chain.ReopenRequest) error {
	type undo struct {
		l   *Layer
		old chain.OpenFlags
	}
	var applied []undo
	for _, r := range queue {
		l := r.Layer.(*Layer)
		l.mu.Lock()
		applied = append(applied, undo{l, l.flags})
		l.flags = r.Flags
		l.mu.Unlock()
	}
	_ = applied // all-or-nothing: this in-memory backend never partially fails
	return nil
}

func (b *Backend) DropIntermediate(_ context.Context, active, top, base chain.Layer) error {
	overlay, ok := b.FindOverlay(context.Background(), active, top)
	if !ok {
		return fmt.Errorf("memory: %w", chain.ErrNotFound)
	}
	ov := overlay.(*Layer)
	ov.mu.Lock()
	ov.backing = base.(*Layer)
	ov.mu.Unlock()
	return nil
}

func (b *Backend) IOStatusEnabled(layer chain.Layer) bool {
	l := layer.(*Layer)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ioStatus
}

func (b *Backend) Sleep(ctx context.Context, ms int64) error {
	return chain.SleepContext(ctx, ms)
}

func (b *Backend) QIOVAligned(chain.Layer, int) bool { return true }

func (b *Backend) BlockAlign(_ chain.Layer, size int) int { return size }

var _ chain.Adapter = (*Backend)(nil)
