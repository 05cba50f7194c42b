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

// Package memsize exposes imgcommitd's in-process memory footprint —
// primarily the engine's allocation-probe LRU and read-through
// fastcache, which are the only caches whose size scales with the
// number of concurrently running jobs. No RPC method exposes it.
package memsize

import (
	"github.com/fjl/memsize"
)

// Reporter holds named roots whose memory use is worth reporting;
// callers add them with Register.
type Reporter struct {
	roots map[string]interface{}
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{roots: make(map[string]interface{})}
}

// Register adds obj under name; a later Scan walks it.
func (r *Reporter) Register(name string, obj interface{}) {
	r.roots[name] = obj
}

// Unregister drops a previously registered root, once its owning job
// has finished.
func (r *Reporter) Unregister(name string) {
	delete(r.roots, name)
}

// Report is one named root's measured size.
type Report struct {
	Name  string
	Bytes uint64
	Tree  string
}

// Scan walks every registered root and returns its measured size. It
// is relatively expensive (a full heap walk per root).
func (r *Reporter) Scan() []Report {
	out := make([]Report, 0, len(r.roots))
	for name, obj := range r.roots {
		sizes := memsize.Scan(obj)
		out = append(out, Report{
			Name:  name,
			Bytes: sizes.Total,
			Tree:  sizes.Report(),
		})
	}
	return out
}
