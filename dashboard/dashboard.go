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

// Package dashboard renders a terminal live view of running commit
// jobs: a progress gauge per device and a sparkline of each job's
// configured speed, for an operator watching a migration from a console
// instead of polling commit_progress by hand.
package dashboard

import (
	ui "github.com/gizak/termui"
	"github.com/gookit/color"

	"imgcommit/commit"
)

// Snapshot is one job's state as rendered by Render.
type Snapshot struct {
	Device   string
	Progress commit.Progress
}

// Dashboard owns the termui widgets for a fixed set of device rows.
type Dashboard struct {
	gauges map[string]*ui.Gauge
	spark  *ui.Sparklines
	order  []string
}

// New initializes termui and lays out one gauge per device in
// devices, in the given order.
func New(devices []string) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, err
	}
	d := &Dashboard{gauges: make(map[string]*ui.Gauge), order: devices}

	var rows []*ui.Row
	for _, dev := range devices {
		g := ui.NewGauge()
		g.Percent = 0
		g.BarColor = ui.ColorGreen
		g.BorderLabel = dev
		g.Height = 3
		d.gauges[dev] = g
		rows = append(rows, ui.NewRow(ui.NewCol(12, 0, g)))
	}

	spark := ui.NewSparkline()
	spark.Title = "speed (bytes/sec)"
	spark.Height = 8
	sparks := ui.NewSparklines(spark)
	d.spark = sparks
	rows = append(rows, ui.NewRow(ui.NewCol(12, 0, sparks)))

	ui.Body.Rows = rows
	ui.Body.Align()
	ui.Render(ui.Body)
	return d, nil
}

// Close tears down the terminal UI.
func (d *Dashboard) Close() { ui.Close() }

// Render updates every row from snapshots and redraws.
func (d *Dashboard) Render(snapshots []Snapshot) {
	var speeds []int
	for _, s := range snapshots {
		g, ok := d.gauges[s.Device]
		if !ok {
			continue
		}
		pct := 0
		if s.Progress.Length > 0 {
			pct = int(s.Progress.Offset * 100 / s.Progress.Length)
		}
		g.Percent = pct
		g.Label = statusLabel(s.Progress)
		speeds = append(speeds, int(s.Progress.Speed))
	}
	if len(d.spark.Lines) > 0 {
		d.spark.Lines[0].Data = speeds
	}
	ui.Render(ui.Body)
}

func statusLabel(p commit.Progress) string {
	switch p.State {
	case commit.StateCompleted:
		return color.FgGreen.Render("completed")
	case commit.StateErrored:
		return color.FgRed.Render("errored")
	case commit.StateCancelled:
		return color.FgYellow.Render("cancelled")
	default:
		return color.FgCyan.Render(p.State.String())
	}
}
