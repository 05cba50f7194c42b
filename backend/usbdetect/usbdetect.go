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

// Package usbdetect enumerates externally attached USB mass-storage
// enclosures eligible to serve as a commit job's Base target. It does
// not implement chain.Adapter itself: a detected Device is handed to
// backend/posix.Open once the operator picks one, the same two-step
// "enumerate, then open" shape the teacher uses for hardware wallets.
package usbdetect

import (
	"fmt"
	"sort"

	"github.com/karalabe/usb"
)

// Device describes one candidate USB backing volume.
type Device struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
}

// candidateVendorIDs lists USB mass-storage bridge chipsets imgcommit
// knows how to treat as a candidate Base volume. Anything else is
// enumerated but filtered out by Scan's default policy.
var candidateVendorIDs = map[uint16]bool{
	0x0781: true, // SanDisk
	0x0951: true, // Kingston
	0x13fe: true, // Kingston (alt)
	0x090c: true, // Silicon Motion
}

// Scan enumerates attached USB devices and returns those that look
// like mass-storage enclosures, sorted by Path for deterministic CLI
// listing order.
func Scan() ([]Device, error) {
	infos, err := usb.Enumerate(0, 0)
	if err != nil {
		return nil, fmt.Errorf("usbdetect: enumerate: %w", err)
	}
	var out []Device
	for _, info := range infos {
		if !candidateVendorIDs[info.VendorID] {
			continue
		}
		out = append(out, Device{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Manufacturer: info.Manufacturer,
			Product:      info.Product,
			Serial:       info.Serial,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Find returns the device whose serial matches, or false if none did.
func Find(devices []Device, serial string) (Device, bool) {
	for _, d := range devices {
		if d.Serial == serial {
			return d, true
		}
	}
	return Device{}, false
}
