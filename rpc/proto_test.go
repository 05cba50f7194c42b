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

package rpc

import "testing"

func TestAppendVarintRoundTripsSmallValues(t *testing.T) {
	tests := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}
	for _, v := range tests {
		buf := appendVarint(nil, v)
		if len(buf) == 0 {
			t.Fatalf("appendVarint(%d) produced no bytes", v)
		}
		// every continuation byte but the last must carry the
		// high bit, and the last must not.
		for i, b := range buf {
			last := i == len(buf)-1
			if last && b&0x80 != 0 {
				t.Fatalf("appendVarint(%d): final byte %#x has continuation bit set", v, b)
			}
			if !last && b&0x80 == 0 {
				t.Fatalf("appendVarint(%d): non-final byte %#x is missing the continuation bit", v, b)
			}
		}
	}
}

func TestMustMarshalFieldsIncludesState(t *testing.T) {
	p := ProgressResponse{Offset: 10, Length: 100, Speed: 5, Status: 0, State: "running"}
	buf := mustMarshalFields(p)
	if len(buf) == 0 {
		t.Fatal("mustMarshalFields produced no bytes")
	}
	got := string(buf[len(buf)-len(p.State):])
	if got != p.State {
		t.Fatalf("trailing bytes = %q, want state %q", got, p.State)
	}
}

func TestEncodeProgress(t *testing.T) {
	p := ProgressResponse{Offset: 1, Length: 2, Speed: 3, Status: 0, State: "completed"}
	raw, err := encodeProgress(p)
	if err != nil {
		t.Fatalf("encodeProgress: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("encodeProgress produced an empty frame")
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []string{"completed", "cancelled", "errored"} {
		if !terminal(s) {
			t.Errorf("terminal(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"running", "created", "cancelling", ""} {
		if terminal(s) {
			t.Errorf("terminal(%q) = true, want false", s)
		}
	}
}
