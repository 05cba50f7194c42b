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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"imgcommit/chain"
)

func TestLengthAndTruncate(t *testing.T) {
	b := New()
	ctx := context.Background()
	l := NewLayer("l", nil, 4*chain.SectorSize)

	n, err := b.Length(ctx, l)
	require.NoError(t, err)
	require.EqualValues(t, 4*chain.SectorSize, n)

	require.NoError(t, b.Truncate(ctx, l, 2*chain.SectorSize))
	n, _ = b.Length(ctx, l)
	require.EqualValues(t, 2*chain.SectorSize, n)

	require.NoError(t, b.Truncate(ctx, l, 8*chain.SectorSize))
	n, _ = b.Length(ctx, l)
	require.EqualValues(t, 8*chain.SectorSize, n)
}

func TestReadWriteRoundTrip(t *testing.T) {
	b := New()
	ctx := context.Background()
	l := NewLayer("l", nil, 4*chain.SectorSize)

	payload := []byte("0123456789abcdef")
	buf := make([]byte, chain.SectorSize)
	copy(buf, payload)
	require.NoError(t, b.WriteAt(ctx, l, 1, 1, buf))

	got := make([]byte, chain.SectorSize)
	require.NoError(t, b.ReadAt(ctx, l, 1, 1, got))
	require.Equal(t, buf, got)
}

func TestReadPastEndFails(t *testing.T) {
	b := New()
	ctx := context.Background()
	l := NewLayer("l", nil, chain.SectorSize)
	buf := make([]byte, 2*chain.SectorSize)
	err := b.ReadAt(ctx, l, 0, 2, buf)
	require.ErrorIs(t, err, chain.ErrEIO)
}

func TestIsAllocatedAboveStopsAtBase(t *testing.T) {
	b := New()
	ctx := context.Background()
	base := NewLayer("base", nil, 4*chain.SectorSize)
	top := NewLayer("top", base, 4*chain.SectorSize)

	base.Seed(0, 4, make([]byte, 4*chain.SectorSize)) // allocated in base, not top

	state, n, err := b.IsAllocatedAbove(ctx, top, base, 0, 4)
	require.NoError(t, err)
	require.Equal(t, chain.NotAllocated, state)
	require.Equal(t, 4, n)

	top.Seed(0, 2, make([]byte, 2*chain.SectorSize))
	state, n, err = b.IsAllocatedAbove(ctx, top, base, 0, 4)
	require.NoError(t, err)
	require.Equal(t, chain.Allocated, state)
	require.Equal(t, 2, n)
}

func TestFindOverlayAndDropIntermediate(t *testing.T) {
	b := New()
	ctx := context.Background()
	base := NewLayer("base", nil, 0)
	top := NewLayer("top", base, 0)
	active := NewLayer("active", top, 0)

	overlay, found := b.FindOverlay(ctx, active, top)
	require.True(t, found)
	require.Equal(t, active, overlay)

	require.NoError(t, b.DropIntermediate(ctx, active, top, base))
	overlay, found = b.FindOverlay(ctx, active, base)
	require.True(t, found)
	require.Equal(t, active, overlay)
}

func TestReopenMultipleAndFlags(t *testing.T) {
	b := New()
	ctx := context.Background()
	l := NewLayer("l", nil, 0)
	l.SetReadOnly()

	flags, err := b.GetFlags(ctx, l)
	require.NoError(t, err)
	require.Equal(t, chain.ReadOnly, flags)

	require.NoError(t, b.ReopenMultiple(ctx, []chain.ReopenRequest{{Layer: l, Flags: chain.ReadWrite}}))
	flags, _ = b.GetFlags(ctx, l)
	require.Equal(t, chain.ReadWrite, flags)
}

func TestDuplicateWriteHitsDiagnostic(t *testing.T) {
	b := New()
	ctx := context.Background()
	l := NewLayer("l", nil, 2*chain.SectorSize)
	buf := make([]byte, chain.SectorSize)

	require.NoError(t, b.WriteAt(ctx, l, 0, 1, buf))
	require.EqualValues(t, 0, b.DuplicateWriteHits())

	require.NoError(t, b.WriteAt(ctx, l, 0, 1, buf))
	require.EqualValues(t, 1, b.DuplicateWriteHits())
}

func TestReadThroughFallsBackToAncestor(t *testing.T) {
	base := NewLayer("base", nil, chain.SectorSize)
	top := NewLayer("top", base, chain.SectorSize)

	base.Seed(0, 1, bytes(0xAA, chain.SectorSize))
	got := top.ReadThrough(0, 1)
	require.Equal(t, bytes(0xAA, chain.SectorSize), got)

	top.Seed(0, 1, bytes(0xBB, chain.SectorSize))
	got = top.ReadThrough(0, 1)
	require.Equal(t, bytes(0xBB, chain.SectorSize), got)
}

func bytes(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
