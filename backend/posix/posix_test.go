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

package posix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"imgcommit/chain"
)

func openLayer(t *testing.T, dir, name string, backing *Layer, size int64) *Layer {
	t.Helper()
	l, err := Open(OpenParams{Path: filepath.Join(dir, name), Backing: backing, Flags: chain.ReadWrite})
	require.NoError(t, err)
	require.NoError(t, l.file.Truncate(size))
	t.Cleanup(func() { l.Close() })
	return l
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := New(false)
	ctx := context.Background()
	l := openLayer(t, dir, "a.img", nil, 4*chain.SectorSize)

	buf := make([]byte, chain.SectorSize)
	for i := range buf {
		buf[i] = 0x5a
	}
	require.NoError(t, b.WriteAt(ctx, l, 2, 1, buf))

	got := make([]byte, chain.SectorSize)
	require.NoError(t, b.ReadAt(ctx, l, 2, 1, got))
	require.Equal(t, buf, got)
}

func TestLengthAndTruncate(t *testing.T) {
	dir := t.TempDir()
	b := New(false)
	ctx := context.Background()
	l := openLayer(t, dir, "a.img", nil, chain.SectorSize)

	n, err := b.Length(ctx, l)
	require.NoError(t, err)
	require.EqualValues(t, chain.SectorSize, n)

	require.NoError(t, b.Truncate(ctx, l, 4*chain.SectorSize))
	n, _ = b.Length(ctx, l)
	require.EqualValues(t, 4*chain.SectorSize, n)
}

func TestFindOverlayAndDropIntermediate(t *testing.T) {
	dir := t.TempDir()
	b := New(false)
	ctx := context.Background()
	base := openLayer(t, dir, "base.img", nil, 0)
	top := openLayer(t, dir, "top.img", base, 0)
	active := openLayer(t, dir, "active.img", top, 0)

	overlay, found := b.FindOverlay(ctx, active, top)
	require.True(t, found)
	require.Equal(t, active, overlay)

	require.NoError(t, b.DropIntermediate(ctx, active, top, base))

	overlay, found = b.FindOverlay(ctx, active, base)
	require.True(t, found)
	require.Equal(t, active, overlay)
}

func TestReopenMultipleFlipsFlags(t *testing.T) {
	dir := t.TempDir()
	b := New(false)
	ctx := context.Background()
	l, err := Open(OpenParams{Path: filepath.Join(dir, "ro.img"), Flags: chain.ReadOnly})
	require.NoError(t, err)
	require.NoError(t, os.Truncate(filepath.Join(dir, "ro.img"), chain.SectorSize))
	t.Cleanup(func() { l.Close() })

	flags, _ := b.GetFlags(ctx, l)
	require.Equal(t, chain.ReadOnly, flags)

	require.NoError(t, b.ReopenMultiple(ctx, []chain.ReopenRequest{{Layer: l, Flags: chain.ReadWrite}}))
	flags, _ = b.GetFlags(ctx, l)
	require.Equal(t, chain.ReadWrite, flags)

	buf := make([]byte, chain.SectorSize)
	require.NoError(t, b.WriteAt(ctx, l, 0, 1, buf))
}

func TestBlockAlignPassthroughWithoutDirect(t *testing.T) {
	dir := t.TempDir()
	b := New(false)
	l := openLayer(t, dir, "a.img", nil, chain.SectorSize)

	require.True(t, b.QIOVAligned(l, 1))
	require.Equal(t, 100, b.BlockAlign(l, 100))
}
