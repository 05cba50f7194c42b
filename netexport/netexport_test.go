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

package netexport

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec    string
		wantNil bool
		wantErr bool
	}{
		{spec: "", wantNil: true},
		{spec: "none", wantNil: true},
		{spec: "off", wantNil: true},
		{spec: "extip:1.2.3.4"},
		{spec: "ip:1.2.3.4"},
		{spec: "extip:not-an-ip", wantErr: true},
		{spec: "extip", wantErr: true},
		{spec: "upnp"},
		{spec: "pmp"},
		{spec: "pmp:192.168.1.1"},
		{spec: "nat-pmp:192.168.1.1"},
		{spec: "bogus", wantErr: true},
	}
	for _, tc := range tests {
		got, err := Parse(tc.spec)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got none", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.spec, err)
			continue
		}
		if tc.wantNil && got != nil {
			t.Errorf("Parse(%q): expected nil interface, got %v", tc.spec, got)
		}
		if !tc.wantNil && got == nil {
			t.Errorf("Parse(%q): expected non-nil interface", tc.spec)
		}
	}
}

func TestExtIP(t *testing.T) {
	ip := net.ParseIP("5.6.7.8")
	iface, err := Parse("extip:5.6.7.8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := iface.ExternalIP()
	if err != nil {
		t.Fatalf("ExternalIP: %v", err)
	}
	if !got.Equal(ip) {
		t.Fatalf("ExternalIP() = %v, want %v", got, ip)
	}
	if err := iface.AddMapping("TCP", 80, 80, "test", time.Minute); err != nil {
		t.Fatalf("AddMapping on ExtIP should be a no-op: %v", err)
	}
}

// fakeMapper is a test double recording AddMapping/DeleteMapping calls.
type fakeMapper struct {
	mu      sync.Mutex
	added   int
	deleted int
}

func (f *fakeMapper) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added++
	return nil
}

func (f *fakeMapper) DeleteMapping(protocol string, extport, intport int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeMapper) ExternalIP() (net.IP, error) { return net.ParseIP("10.0.0.1"), nil }
func (f *fakeMapper) String() string              { return "fakeMapper" }

func TestExportAddsThenRemovesMappingOnStop(t *testing.T) {
	m := &fakeMapper{}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		Export(m, stop, "TCP", 8080, 8080, "test")
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		m.mu.Lock()
		added := m.added
		m.mu.Unlock()
		if added >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for AddMapping to be called")
		case <-time.After(time.Millisecond):
		}
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Export did not return after stop was closed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted != 1 {
		t.Fatalf("expected DeleteMapping to be called once on stop, got %d", m.deleted)
	}
}

func TestAutodiscNoGateway(t *testing.T) {
	n := startautodisc("test mechanism", func() Interface { return nil })
	if _, err := n.ExternalIP(); err == nil {
		t.Fatal("expected an error when no gateway is discovered")
	}
	if got := n.String(); got != "test mechanism" {
		t.Fatalf("String() before discovery = %q, want %q", got, "test mechanism")
	}
}
