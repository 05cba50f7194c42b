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

// Package sysinfo collects the preflight report imgcommitd checks once
// at startup: available memory, free space on the filesystem hosting a
// given path, and the process's nice value.
package sysinfo

import (
	"fmt"

	sigar "github.com/elastic/gosigar"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
)

// Report summarises the host's preflight state at the time Collect ran.
type Report struct {
	FreeMemoryBytes  uint64
	TotalMemoryBytes uint64
	FreeDiskBytes    uint64
	DiskPath         string
	OpenOrNice       int64 // process nice value, a cheap proxy for I/O priority (sigar.ProcTime isn't portable enough to rely on)
}

// Collect gathers a preflight Report for the filesystem hosting path
// (typically Base's directory).
func Collect(path string) (Report, error) {
	var r Report
	r.DiskPath = path

	vm, err := mem.VirtualMemory()
	if err != nil {
		return r, fmt.Errorf("sysinfo: virtual memory: %w", err)
	}
	r.FreeMemoryBytes = vm.Available
	r.TotalMemoryBytes = vm.Total

	usage, err := disk.Usage(path)
	if err != nil {
		return r, fmt.Errorf("sysinfo: disk usage %s: %w", path, err)
	}
	r.FreeDiskBytes = usage.Free

	var state sigar.ProcState
	if err := state.Get(0); err == nil {
		// PID 0 resolves to the caller's own process on every gosigar
		// platform backend; a failure here (exotic OS) just leaves the
		// field zero rather than failing the whole preflight report.
		r.OpenOrNice = int64(state.Nice)
	}
	return r, nil
}

// MinimumFreeBytes is the smallest amount of free space CheckHeadroom
// accepts; imgcommitd only logs a warning at startup when its data
// directory's filesystem has less.
const MinimumFreeBytes = 64 * 1024 * 1024

// CheckHeadroom reports an error if r does not leave at least
// MinimumFreeBytes of disk headroom.
func CheckHeadroom(r Report) error {
	if r.FreeDiskBytes < MinimumFreeBytes {
		return fmt.Errorf("sysinfo: %s has only %d bytes free, want at least %d", r.DiskPath, r.FreeDiskBytes, MinimumFreeBytes)
	}
	return nil
}
