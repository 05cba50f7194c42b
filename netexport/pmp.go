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
	"fmt"
	"net"
	"strings"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
)

type pmp struct {
	gw net.IP
	c  *natpmp.Client
}

func newPMP(gw net.IP) *pmp {
	return &pmp{gw: gw, c: natpmp.NewClient(gw)}
}

func (n *pmp) String() string {
	return fmt.Sprintf("NAT-PMP(%v)", n.gw)
}

func (n *pmp) ExternalIP() (net.IP, error) {
	response, err := n.c.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	return response.ExternalIPAddress[:], nil
}

func (n *pmp) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	if lifetime <= 0 {
		lifetime = mapTimeout
	}
	_, err := n.c.AddPortMapping(strings.ToLower(protocol), intport, extport, int(lifetime/time.Second))
	return err
}

func (n *pmp) DeleteMapping(protocol string, extport, intport int) error {
	_, err := n.c.AddPortMapping(strings.ToLower(protocol), intport, 0, 0)
	return err
}

// discoverPMP probes every locally-configured gateway candidate for a
// NAT-PMP responder and returns the first one that answers.
func discoverPMP() Interface {
	gws := potentialGateways()
	found := make(chan *pmp, len(gws))
	for _, gw := range gws {
		gw := gw
		go func() {
			c := natpmp.NewClient(gw)
			if _, err := c.GetExternalAddress(); err != nil {
				found <- nil
				return
			}
			found <- &pmp{gw: gw, c: c}
		}()
	}
	for range gws {
		if c := <-found; c != nil {
			return c
		}
	}
	return nil
}

// potentialGateways guesses router addresses from this host's
// configured interfaces: the first address of each private subnet,
// since NAT-PMP has no discovery broadcast of its own.
func potentialGateways() (gws []net.IP) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			x, ok := addr.(*net.IPNet)
			if !ok || x.IP.To4() == nil || !x.IP.IsPrivate() {
				continue
			}
			gw := make(net.IP, len(x.IP.To4()))
			copy(gw, x.IP.To4())
			gw[len(gw)-1] = 1
			gws = append(gws, gw)
		}
	}
	return gws
}
