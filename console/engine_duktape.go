// Copyright 2016 The go-ethereum Authors
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

//go:build duktape
// +build duktape

// This file provides an alternative JavaScript engine, a cgo binding to
// duktape, for builds where otto's pure-Go interpreter is too slow
// for scripted preload files; build with -tags duktape to select it.
package console

import (
	"encoding/json"
	"fmt"
	"io"

	duktape "gopkg.in/olebedev/go-duktape.v3"
)

const engineName = "duktape"

type jsEngine struct {
	ctx    *duktape.Context
	bridge *bridge
	out    io.Writer
}

func newEngine(out io.Writer, b *bridge) (*jsEngine, error) {
	ctx := duktape.New()
	e := &jsEngine{ctx: ctx, bridge: b, out: out}

	ctx.PushGlobalGoFunction("__commit_start", func(c *duktape.Context) int {
		active, top, base, device := c.GetString(0), c.GetString(1), c.GetString(2), c.GetString(3)
		speed := int64(c.GetNumber(4))
		resp, err := b.start(active, top, base, device, speed)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			c.PushUndefined()
			return 1
		}
		raw, _ := json.Marshal(resp)
		c.PushString(string(raw))
		c.JsonDecode(-1)
		return 1
	})
	ctx.PushGlobalGoFunction("__commit_setSpeed", func(c *duktape.Context) int {
		if err := b.setSpeed(c.GetString(0), int64(c.GetNumber(1))); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return 0
	})
	ctx.PushGlobalGoFunction("__commit_pause", func(c *duktape.Context) int {
		if err := b.pause(c.GetString(0)); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return 0
	})
	ctx.PushGlobalGoFunction("__commit_resume", func(c *duktape.Context) int {
		if err := b.resume(c.GetString(0), int64(c.GetNumber(1))); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return 0
	})
	ctx.PushGlobalGoFunction("__commit_cancel", func(c *duktape.Context) int {
		if err := b.cancel(c.GetString(0)); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return 0
	})
	ctx.PushGlobalGoFunction("__commit_progress", func(c *duktape.Context) int {
		resp, err := b.progress(c.GetString(0))
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			c.PushUndefined()
			return 1
		}
		raw, _ := json.Marshal(resp)
		c.PushString(string(raw))
		c.JsonDecode(-1)
		return 1
	})
	ctx.PushGlobalGoFunction("__console_log", func(c *duktape.Context) int {
		n := c.GetTop()
		parts := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			parts = append(parts, c.SafeToString(i))
		}
		fmt.Fprintln(out, parts...)
		return 0
	})

	if _, err := ctx.PevalString(`
		var commit = {
			start: function(active, top, base, device, speed) { return __commit_start(active, top, base, device, speed || 0); },
			setSpeed: function(jobID, speed) { return __commit_setSpeed(jobID, speed); },
			pause: function(jobID) { return __commit_pause(jobID); },
			resume: function(jobID, speed) { return __commit_resume(jobID, speed || 0); },
			cancel: function(jobID) { return __commit_cancel(jobID); },
			progress: function(jobID) { return __commit_progress(jobID); },
		};
		var console = { log: __console_log, error: __console_log };
	`); err != nil {
		return nil, fmt.Errorf("console: bootstrap duktape namespaces: %w", err)
	}
	ctx.Pop()
	return e, nil
}

func (e *jsEngine) Run(src string) (string, error) {
	if _, err := e.ctx.PevalString(src); err != nil {
		return "", err
	}
	result := e.ctx.SafeToString(-1)
	e.ctx.Pop()
	return result, nil
}

func (e *jsEngine) CompleteKeywords(partial string) []string {
	candidates := []string{"commit.start", "commit.setSpeed", "commit.pause", "commit.resume", "commit.cancel", "commit.progress"}
	var out []string
	for _, c := range candidates {
		if len(partial) <= len(c) && c[:len(partial)] == partial {
			out = append(out, c)
		}
	}
	return out
}

func (e *jsEngine) Stop() {
	e.ctx.DestroyHeap()
}
