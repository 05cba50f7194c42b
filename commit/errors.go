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

package commit

import "errors"

// Validation errors returned synchronously by Start. When one of these
// is returned, no job record was created.
var (
	ErrInvalidParameterCombination = errors.New("commit: on-error policy requires io-status reporting, which is disabled")
	ErrTopIsActive                 = errors.New("commit: top must not be the active layer")
	ErrTopAndBaseIdentical         = errors.New("commit: top and base must not be identical")
	ErrTopNotFound                 = errors.New("commit: top has no overlay in active's chain")
	ErrDeviceInUse                 = errors.New("commit: device already has a running job")
)

// OnError is the externally configured verdict applied to each failed
// read or write during the main loop.
type OnError int

const (
	// Report records the error and stops the job.
	Report OnError = iota
	// Ignore retries the same sector indefinitely.
	Ignore
	// StopAny stops on any read/write error.
	StopAny
	// StopENOSPC stops only on ENOSPC, otherwise behaves like Ignore.
	StopENOSPC
)

func (e OnError) String() string {
	switch e {
	case Report:
		return "report"
	case Ignore:
		return "ignore"
	case StopAny:
		return "stop-any"
	case StopENOSPC:
		return "stop-enospc"
	default:
		return "unknown"
	}
}

// requiresIOStatus reports whether policy e requires the adapter's
// io-status reporting subsystem to be enabled on Active.
func (e OnError) requiresIOStatus() bool {
	return e == StopAny || e == StopENOSPC
}

// POSIX-style errno values used to populate the terminal status; kept
// symbolic rather than importing syscall so the core stays portable
// across the backends that implement chain.Adapter.
const (
	errEIO    = 5
	errENOSPC = 28
)
