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

// New requires an initialized terminal (termui opens the real TTY),
// so it isn't exercised here; statusLabel is the one piece of pure
// rendering logic that doesn't need one.
package dashboard

import (
	"strings"
	"testing"

	"imgcommit/commit"
)

func TestStatusLabelTerminalStates(t *testing.T) {
	tests := []struct {
		state commit.State
		want  string
	}{
		{commit.StateCompleted, "completed"},
		{commit.StateErrored, "errored"},
		{commit.StateCancelled, "cancelled"},
		{commit.StateRunning, "running"},
	}
	for _, tc := range tests {
		got := statusLabel(commit.Progress{State: tc.state})
		if !strings.Contains(got, tc.want) {
			t.Errorf("statusLabel(%v) = %q, want it to contain %q", tc.state, got, tc.want)
		}
	}
}
