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

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLvlString(t *testing.T) {
	tests := map[Lvl]string{
		LvlCrit:  "CRIT",
		LvlError: "ERROR",
		LvlWarn:  "WARN",
		LvlInfo:  "INFO",
		LvlDebug: "DEBUG",
		LvlTrace: "TRACE",
		Lvl(99):  "???",
	}
	for lvl, want := range tests {
		if got := lvl.String(); got != want {
			t.Errorf("Lvl(%d).String() = %q, want %q", lvl, got, want)
		}
	}
}

func TestLoggerWritesContextAndMessage(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LvlInfo)

	l := New("component", "test")
	l.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output %q missing message", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("output %q missing logger context", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("output %q missing call-site context", out)
	}
	if !strings.Contains(out, "[INFO ]") {
		t.Errorf("output %q missing level tag", out)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LvlWarn)

	l := New()
	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below the configured level, got %q", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected the warning to be written, got %q", buf.String())
	}

	SetLevel(LvlInfo)
}

func TestChildLoggerInheritsAndAppendsContext(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LvlInfo)

	parent := New("parent", "p1")
	child := parent.New("child", "c1")
	child.Info("msg")

	out := buf.String()
	if !strings.Contains(out, "parent=p1") || !strings.Contains(out, "child=c1") {
		t.Fatalf("expected both parent and child context in %q", out)
	}
}
