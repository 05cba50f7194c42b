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

package metrics

import (
	"fmt"
	"time"

	client "github.com/influxdata/influxdb/client/v2"
)

// InfluxReporter periodically pushes job progress samples to an
// external InfluxDB instance, for shops that already centralise their
// time series there instead of scraping imgcommitd with Prometheus.
type InfluxReporter struct {
	c        client.Client
	database string
}

// NewInfluxReporter dials addr (e.g. "http://localhost:8086").
func NewInfluxReporter(addr, username, password, database string) (*InfluxReporter, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: influx client: %w", err)
	}
	return &InfluxReporter{c: c, database: database}, nil
}

// Close releases the underlying HTTP client.
func (r *InfluxReporter) Close() error { return r.c.Close() }

// Push writes one batch of progress points for jobID.
func (r *InfluxReporter) Push(jobID, device string, offset, length int64, speed int64) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: r.database, Precision: "s"})
	if err != nil {
		return fmt.Errorf("metrics: new batch: %w", err)
	}

	tags := map[string]string{"job": jobID, "device": device}
	fields := map[string]interface{}{
		"offset": offset,
		"length": length,
		"speed":  speed,
	}
	pt, err := client.NewPoint("commit_progress", tags, fields, time.Now())
	if err != nil {
		return fmt.Errorf("metrics: new point: %w", err)
	}
	bp.AddPoint(pt)

	if err := r.c.Write(bp); err != nil {
		return fmt.Errorf("metrics: write batch: %w", err)
	}
	return nil
}
