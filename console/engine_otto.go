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

//go:build !duktape
// +build !duktape

package console

import (
	"fmt"
	"io"

	"github.com/robertkrimen/otto"
)

// engineName identifies which JavaScript engine this build was
// compiled against; surfaced in Welcome() so a bug report names the
// right interpreter.
const engineName = "otto"

// jsEngine is the minimal JavaScript runtime surface the console
// needs; it's satisfied by both the default otto build and the
// duktape build enabled by the "duktape" build tag.
type jsEngine struct {
	vm     *otto.Otto
	bridge *bridge
}

func newEngine(out io.Writer, b *bridge) (*jsEngine, error) {
	vm := otto.New()
	e := &jsEngine{vm: vm, bridge: b}

	commitObj, _ := vm.Object(`({})`)
	commitObj.Set("start", func(call otto.FunctionCall) otto.Value {
		args := call.ArgumentList
		active, _ := args[0].ToString()
		top, _ := args[1].ToString()
		base, _ := args[2].ToString()
		device, _ := args[3].ToString()
		speed := int64(0)
		if len(args) > 4 {
			f, _ := args[4].ToFloat()
			speed = int64(f)
		}
		resp, err := b.start(active, top, base, device, speed)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return otto.Value{}
		}
		v, _ := vm.ToValue(resp)
		return v
	})
	commitObj.Set("setSpeed", func(call otto.FunctionCall) otto.Value {
		jobID, _ := call.Argument(0).ToString()
		speed, _ := call.Argument(1).ToInteger()
		if err := b.setSpeed(jobID, speed); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return otto.Value{}
	})
	commitObj.Set("pause", func(call otto.FunctionCall) otto.Value {
		jobID, _ := call.Argument(0).ToString()
		if err := b.pause(jobID); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return otto.Value{}
	})
	commitObj.Set("resume", func(call otto.FunctionCall) otto.Value {
		jobID, _ := call.Argument(0).ToString()
		speed, _ := call.Argument(1).ToInteger()
		if err := b.resume(jobID, speed); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return otto.Value{}
	})
	commitObj.Set("cancel", func(call otto.FunctionCall) otto.Value {
		jobID, _ := call.Argument(0).ToString()
		if err := b.cancel(jobID); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return otto.Value{}
	})
	commitObj.Set("progress", func(call otto.FunctionCall) otto.Value {
		jobID, _ := call.Argument(0).ToString()
		resp, err := b.progress(jobID)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return otto.Value{}
		}
		v, _ := vm.ToValue(resp)
		return v
	})
	if err := vm.Set("commit", commitObj); err != nil {
		return nil, fmt.Errorf("console: register commit namespace: %w", err)
	}

	consoleObj, _ := vm.Object(`({})`)
	logFn := func(call otto.FunctionCall) otto.Value {
		parts := make([]interface{}, 0, len(call.ArgumentList))
		for _, a := range call.ArgumentList {
			parts = append(parts, a.String())
		}
		fmt.Fprintln(out, parts...)
		return otto.Value{}
	}
	consoleObj.Set("log", logFn)
	consoleObj.Set("error", logFn)
	if err := vm.Set("console", consoleObj); err != nil {
		return nil, fmt.Errorf("console: register console namespace: %w", err)
	}
	return e, nil
}

func (e *jsEngine) Run(src string) (string, error) {
	v, err := e.vm.Run(src)
	if err != nil {
		return "", err
	}
	if v.IsUndefined() {
		return "", nil
	}
	return v.String(), nil
}

func (e *jsEngine) CompleteKeywords(partial string) []string {
	// otto doesn't expose its global symbol table for completion; the
	// console falls back to the fixed "commit.*" namespace.
	candidates := []string{"commit.start", "commit.setSpeed", "commit.pause", "commit.resume", "commit.cancel", "commit.progress"}
	var out []string
	for _, c := range candidates {
		if len(partial) <= len(c) && c[:len(partial)] == partial {
			out = append(out, c)
		}
	}
	return out
}

func (e *jsEngine) Stop() {}
