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

package registry

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
)

// AuditLog is an append-only record of job lifecycle events, kept so
// an operator can reconstruct which device ran which job and when
// without cross-referencing rotated log files.
type AuditLog struct {
	db  *leveldb.DB
	seq uint64
}

// AuditEvent is one recorded lifecycle transition.
type AuditEvent struct {
	JobID  string
	Device string
	Kind   string // "started", "cancelled", "completed", "errored"
	Status int
}

// OpenAuditLog opens (creating if absent) a leveldb-backed audit log
// at dir, continuing the sequence after the last recorded event.
func OpenAuditLog(dir string) (*AuditLog, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: open audit log: %w", err)
	}
	a := &AuditLog{db: db}
	iter := db.NewIterator(nil, nil)
	if iter.Last() && len(iter.Key()) == 8 {
		a.seq = binary.BigEndian.Uint64(iter.Key())
	}
	iter.Release()
	return a, nil
}

// Close releases the underlying database handle.
func (a *AuditLog) Close() error { return a.db.Close() }

// Append records ev under the next sequence number. Values are
// snappy-compressed: audit events are small but long-lived, and the
// teacher's own chain database uses the same codec for the same
// reason (cheap to decompress, cheap to store for years).
func (a *AuditLog) Append(ev AuditEvent) error {
	a.seq++
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, a.seq)

	raw := encodeEvent(ev)
	if err := a.db.Put(key, snappy.Encode(nil, raw), nil); err != nil {
		return fmt.Errorf("registry: append audit event: %w", err)
	}
	return nil
}

// Recent returns the most recent n audit events, oldest first.
func (a *AuditLog) Recent(n int) ([]AuditEvent, error) {
	iter := a.db.NewIterator(nil, nil)
	defer iter.Release()

	var all []AuditEvent
	for iter.Next() {
		raw, err := snappy.Decode(nil, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("registry: decode audit event: %w", err)
		}
		ev, err := decodeEvent(raw)
		if err != nil {
			return nil, err
		}
		all = append(all, ev)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("registry: iterate audit log: %w", err)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// encodeEvent/decodeEvent use a trivial length-prefixed field layout;
// the audit log never needs to interoperate with anything outside
// this package, so there is no reason to reach for a general-purpose
// serializer here.
func encodeEvent(ev AuditEvent) []byte {
	buf := make([]byte, 0, 64)
	buf = appendString(buf, ev.JobID)
	buf = appendString(buf, ev.Device)
	buf = appendString(buf, ev.Kind)
	status := make([]byte, 8)
	binary.BigEndian.PutUint64(status, uint64(ev.Status))
	buf = append(buf, status...)
	return buf
}

func decodeEvent(raw []byte) (AuditEvent, error) {
	var ev AuditEvent
	var ok bool
	ev.JobID, raw, ok = readString(raw)
	if !ok {
		return ev, fmt.Errorf("registry: truncated audit record")
	}
	ev.Device, raw, ok = readString(raw)
	if !ok {
		return ev, fmt.Errorf("registry: truncated audit record")
	}
	ev.Kind, raw, ok = readString(raw)
	if !ok {
		return ev, fmt.Errorf("registry: truncated audit record")
	}
	if len(raw) < 8 {
		return ev, fmt.Errorf("registry: truncated audit record")
	}
	ev.Status = int(int64(binary.BigEndian.Uint64(raw)))
	return ev, nil
}

func appendString(buf []byte, s string) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(s)))
	buf = append(buf, length...)
	return append(buf, s...)
}

func readString(raw []byte) (string, []byte, bool) {
	if len(raw) < 4 {
		return "", raw, false
	}
	n := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	if uint32(len(raw)) < n {
		return "", raw, false
	}
	return string(raw[:n]), raw[n:], true
}
