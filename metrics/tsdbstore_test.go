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

package metrics

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRecordOffsetAndSpeed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tsdb")
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	now := time.Now().UnixNano() / int64(time.Millisecond)
	if err := store.RecordOffset(now, "job-1", "dev-1", 4096); err != nil {
		t.Fatalf("RecordOffset: %v", err)
	}
	if err := store.RecordSpeed(now, "job-1", "dev-1", 1<<20); err != nil {
		t.Fatalf("RecordSpeed: %v", err)
	}
}

func TestStoreReopenSameDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tsdb")
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	now := time.Now().UnixNano() / int64(time.Millisecond)
	if err := store.RecordOffset(now, "job-1", "dev-1", 1024); err != nil {
		t.Fatalf("RecordOffset: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen OpenStore: %v", err)
	}
	defer reopened.Close()
}
