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
	"context"
	"fmt"
	"time"

	"github.com/prometheus/prometheus/promql"
)

// Sample is one evaluated point of a PromQL range query.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Engine runs ad-hoc PromQL queries against a Store.
type Engine struct {
	store  *Store
	engine *promql.Engine
}

// NewEngine wraps store with a PromQL evaluator.
func NewEngine(store *Store) *Engine {
	return &Engine{
		store:  store,
		engine: promql.NewEngine(promql.EngineOpts{MaxSamples: 50_000_000, Timeout: 30 * time.Second}),
	}
}

// RangeQuery evaluates expr against the store's data between start
// and end, sampled every step.
func (e *Engine) RangeQuery(ctx context.Context, expr string, start, end time.Time, step time.Duration) ([]Sample, error) {
	q, err := e.engine.NewRangeQuery(e.store.db, expr, start, end, step)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse query: %w", err)
	}
	defer q.Close()

	res := q.Exec(ctx)
	if res.Err != nil {
		return nil, fmt.Errorf("metrics: exec query: %w", res.Err)
	}
	matrix, err := res.Matrix()
	if err != nil {
		return nil, fmt.Errorf("metrics: query did not return a range vector: %w", err)
	}

	var out []Sample
	for _, series := range matrix {
		for _, p := range series.Points {
			out = append(out, Sample{Timestamp: time.UnixMilli(p.T), Value: p.V})
		}
	}
	return out, nil
}
