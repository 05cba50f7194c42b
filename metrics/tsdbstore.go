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

// Package metrics persists commit-job progress samples to a local
// Prometheus TSDB block store, so throughput history survives an
// imgcommitd restart and can be queried with PromQL through Engine.
package metrics

import (
	"fmt"

	"github.com/prometheus/tsdb"
	"github.com/prometheus/tsdb/labels"
)

// Store appends per-job progress samples to an on-disk TSDB.
type Store struct {
	db *tsdb.DB
}

// OpenStore opens (creating if absent) a TSDB instance rooted at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := tsdb.Open(dir, nil, nil, tsdb.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("metrics: open tsdb: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordOffset appends one (jobID, device) -> offset sample at ts
// (unix millis).
func (s *Store) RecordOffset(ts int64, jobID, device string, offset int64) error {
	app := s.db.Appender()
	lbls := labels.Labels{
		{Name: "__name__", Value: "imgcommit_job_offset_bytes"},
		{Name: "job", Value: jobID},
		{Name: "device", Value: device},
	}
	if _, err := app.Add(lbls, ts, float64(offset)); err != nil {
		app.Rollback()
		return fmt.Errorf("metrics: add sample: %w", err)
	}
	if err := app.Commit(); err != nil {
		return fmt.Errorf("metrics: commit sample: %w", err)
	}
	return nil
}

// RecordSpeed appends one (jobID, device) -> configured-speed sample
// at ts, so an operator can correlate a SetSpeed call with the
// resulting throughput change in the same query.
func (s *Store) RecordSpeed(ts int64, jobID, device string, bytesPerSec int64) error {
	app := s.db.Appender()
	lbls := labels.Labels{
		{Name: "__name__", Value: "imgcommit_job_speed_limit"},
		{Name: "job", Value: jobID},
		{Name: "device", Value: device},
	}
	if _, err := app.Add(lbls, ts, float64(bytesPerSec)); err != nil {
		app.Rollback()
		return fmt.Errorf("metrics: add sample: %w", err)
	}
	if err := app.Commit(); err != nil {
		return fmt.Errorf("metrics: commit sample: %w", err)
	}
	return nil
}
