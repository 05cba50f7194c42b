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

// These tests cover the Backend's delegation path (when the layer in
// play is a local chain.Adapter layer, not an Azure page blob); the
// blob-backed path requires a live (or emulated) storage account and
// isn't exercised here.
package azureblob

import (
	"context"
	"testing"

	"imgcommit/backend/memory"
	"imgcommit/chain"
)

func TestBackendDelegatesNonBlobLayers(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	base := memory.NewLayer("base", nil, 4*chain.SectorSize)
	base.Seed(0, 1, make([]byte, chain.SectorSize))

	b := New(local)

	length, err := b.Length(ctx, base)
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	wantLen, _ := local.Length(ctx, base)
	if length != wantLen {
		t.Fatalf("Length() = %d, want delegated value %d", length, wantLen)
	}

	if err := b.Truncate(ctx, base, 2*chain.SectorSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	length, err = local.Length(ctx, base)
	if err != nil {
		t.Fatalf("Length after delegated Truncate: %v", err)
	}
	if length != 2*chain.SectorSize {
		t.Fatalf("Length after Truncate = %d, want %d", length, 2*chain.SectorSize)
	}

	if got, want := b.IOStatusEnabled(base), local.IOStatusEnabled(base); got != want {
		t.Fatalf("IOStatusEnabled() = %v, want it delegated straight through as %v", got, want)
	}
}

func TestIsBlobFalseForLocalLayer(t *testing.T) {
	b := New(memory.New())
	local := memory.NewLayer("x", nil, 0)
	if _, ok := b.isBlob(local); ok {
		t.Fatal("isBlob should report false for a non-*azureblob.Layer")
	}
}
