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
	"errors"
	"net"
	"strings"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
)

// upnpClient is the subset of the generated WANIPConnection /
// WANPPPConnection clients this package needs; internetgateway1 and
// internetgateway2 both satisfy it.
type upnpClient interface {
	GetExternalIPAddress() (string, error)
	AddPortMapping(string, uint16, string, uint16, string, bool, string, uint32) error
	DeletePortMapping(string, uint16, string) error
}

type upnp struct {
	service string
	client  upnpClient
}

func (n *upnp) String() string { return "UPnP " + n.service }

func (n *upnp) ExternalIP() (net.IP, error) {
	s, err := n.client.GetExternalIPAddress()
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, errors.New("netexport: bad IP in UPnP response")
	}
	return ip, nil
}

func (n *upnp) AddMapping(protocol string, extport, intport int, desc string, lifetime time.Duration) error {
	ip, err := internalAddress()
	if err != nil {
		return err
	}
	n.DeleteMapping(protocol, extport, intport)
	return n.client.AddPortMapping("", uint16(extport), strings.ToUpper(protocol), uint16(intport), ip.String(), true, desc, uint32(lifetime/time.Second))
}

func (n *upnp) DeleteMapping(protocol string, extport, intport int) error {
	return n.client.DeletePortMapping("", uint16(extport), strings.ToUpper(protocol))
}

func internalAddress() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if x, ok := addr.(*net.IPNet); ok && x.IP.IsGlobalUnicast() {
				return x.IP, nil
			}
		}
	}
	return nil, errors.New("netexport: no routable local address found")
}

// discoverUPnP tries each generation of the WAN connection service in
// parallel and returns whichever gateway answers first. Takes a few
// seconds; callers reach it through autodisc so it never blocks the
// caller of UPnP()/Any().
func discoverUPnP() Interface {
	found := make(chan *upnp, 3)
	go discoverIP2(found)
	go discoverIP1(found)
	go discoverPPP1(found)
	for i := 0; i < cap(found); i++ {
		if c := <-found; c != nil {
			return c
		}
	}
	return nil
}

func discoverIP2(out chan<- *upnp) {
	clients, _, err := internetgateway2.NewWANIPConnection2Clients()
	if err != nil || len(clients) == 0 {
		out <- nil
		return
	}
	out <- &upnp{service: "IP2", client: clients[0]}
}

func discoverIP1(out chan<- *upnp) {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		out <- nil
		return
	}
	out <- &upnp{service: "IP1", client: clients[0]}
}

func discoverPPP1(out chan<- *upnp) {
	clients, _, err := internetgateway1.NewWANPPPConnection1Clients()
	if err != nil || len(clients) == 0 {
		out <- nil
		return
	}
	out <- &upnp{service: "PPP1", client: clients[0]}
}
