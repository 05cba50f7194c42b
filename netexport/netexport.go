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

// Package netexport maps a local port forward so a freshly committed
// Base image can be pulled by a remote operator without the daemon
// host needing a routable address of its own.
package netexport

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"imgcommit/internal/log"
)

// Interface is implemented by each supported port-mapping mechanism.
type Interface interface {
	// AddMapping maps extport on the gateway's external address to
	// intport on this host, for protocol ("TCP" or "UDP").
	AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error
	DeleteMapping(protocol string, extport, intport int) error

	// ExternalIP returns the gateway's Internet-facing address.
	ExternalIP() (net.IP, error)

	String() string
}

// Parse parses a port-mapping mechanism spec.
//
//	""  or "none"        no mapping; caller is responsible for reachability
//	"extip:77.12.33.4"   assumes the host is already reachable at the given IP
//	"any"                first auto-detected mechanism
//	"upnp"               Universal Plug and Play
//	"pmp"                NAT-PMP, auto-detecting the gateway
//	"pmp:192.168.0.1"    NAT-PMP against a specific gateway
func Parse(spec string) (Interface, error) {
	parts := strings.SplitN(spec, ":", 2)
	mech := strings.ToLower(parts[0])
	var ip net.IP
	if len(parts) > 1 {
		ip = net.ParseIP(parts[1])
		if ip == nil {
			return nil, errors.New("invalid IP address")
		}
	}
	switch mech {
	case "", "none", "off":
		return nil, nil
	case "any", "auto", "on":
		return Any(), nil
	case "extip", "ip":
		if ip == nil {
			return nil, errors.New("missing IP address")
		}
		return ExtIP(ip), nil
	case "upnp":
		return UPnP(), nil
	case "pmp", "natpmp", "nat-pmp":
		return PMP(ip), nil
	default:
		return nil, fmt.Errorf("unknown mechanism %q", parts[0])
	}
}

const (
	mapTimeout        = 20 * time.Minute
	mapUpdateInterval = 15 * time.Minute
)

// Export maps extport to intport on m and keeps the mapping refreshed
// until stop is closed, then removes it. Run in its own goroutine for
// the lifetime of the export (typically one commit job's Base
// read-only server).
func Export(m Interface, stop <-chan struct{}, protocol string, extport, intport int, name string) {
	l := log.New("proto", protocol, "extport", extport, "intport", intport, "mechanism", m)
	refresh := time.NewTimer(mapUpdateInterval)
	defer func() {
		refresh.Stop()
		l.Debug("removing export mapping")
		m.DeleteMapping(protocol, extport, intport)
	}()

	if err := m.AddMapping(protocol, extport, intport, name, mapTimeout); err != nil {
		l.Debug("couldn't add export mapping", "err", err)
	} else {
		l.Info("exported base image port")
	}
	for {
		select {
		case <-stop:
			return
		case <-refresh.C:
			l.Trace("refreshing export mapping")
			if err := m.AddMapping(protocol, extport, intport, name, mapTimeout); err != nil {
				l.Debug("couldn't add export mapping", "err", err)
			}
			refresh.Reset(mapUpdateInterval)
		}
	}
}

// ExtIP assumes the host is already reachable at the given address;
// its mapping operations are no-ops.
type ExtIP net.IP

func (n ExtIP) ExternalIP() (net.IP, error) { return net.IP(n), nil }
func (n ExtIP) String() string              { return fmt.Sprintf("ExtIP(%v)", net.IP(n)) }

func (ExtIP) AddMapping(string, int, int, string, time.Duration) error { return nil }
func (ExtIP) DeleteMapping(string, int, int) error                     { return nil }

// Any tries both supported mechanisms and returns whichever responds
// first.
func Any() Interface {
	return startautodisc("UPnP or NAT-PMP", func() Interface {
		found := make(chan Interface, 2)
		go func() { found <- discoverUPnP() }()
		go func() { found <- discoverPMP() }()
		for i := 0; i < cap(found); i++ {
			if c := <-found; c != nil {
				return c
			}
		}
		return nil
	})
}

// UPnP returns a mapper that discovers the router over UDP broadcast
// and speaks the Universal Plug and Play protocol.
func UPnP() Interface {
	return startautodisc("UPnP", discoverUPnP)
}

// PMP returns a mapper that speaks NAT-PMP to gateway, or
// auto-discovers the gateway address if gateway is nil.
func PMP(gateway net.IP) Interface {
	if gateway != nil {
		return newPMP(gateway)
	}
	return startautodisc("NAT-PMP", discoverPMP)
}

// autodisc wraps a mechanism whose gateway hasn't been found yet;
// every method call blocks until discovery completes.
type autodisc struct {
	what string
	once sync.Once
	doit func() Interface

	mu    sync.Mutex
	found Interface
}

func startautodisc(what string, doit func() Interface) Interface {
	return &autodisc{what: what, doit: doit}
}

func (n *autodisc) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	if err := n.wait(); err != nil {
		return err
	}
	return n.found.AddMapping(protocol, extport, intport, name, lifetime)
}

func (n *autodisc) DeleteMapping(protocol string, extport, intport int) error {
	if err := n.wait(); err != nil {
		return err
	}
	return n.found.DeleteMapping(protocol, extport, intport)
}

func (n *autodisc) ExternalIP() (net.IP, error) {
	if err := n.wait(); err != nil {
		return nil, err
	}
	return n.found.ExternalIP()
}

func (n *autodisc) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.found == nil {
		return n.what
	}
	return n.found.String()
}

func (n *autodisc) wait() error {
	n.once.Do(func() {
		n.mu.Lock()
		n.found = n.doit()
		n.mu.Unlock()
	})
	if n.found == nil {
		return fmt.Errorf("no %s gateway discovered", n.what)
	}
	return nil
}
