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

package console

import (
	"context"
	"encoding/json"

	"imgcommit/rpc"
)

// bridge exposes the daemon's commit_* RPC methods to the JavaScript
// console as plain Go functions, so the JS engine adapter (otto or
// duktape) only has to know how to marshal arguments and call a Go
// func, not how to speak our wire protocol.
type bridge struct {
	client rpcCaller
}

// rpcCaller is the transport the bridge drives; DialIPC and an
// in-process *rpc.Handler wrapper both satisfy it, so the console
// works the same whether it's attached to a running daemon over its
// IPC endpoint or embedded in the daemon process itself.
type rpcCaller interface {
	Call(ctx context.Context, method string, params, result interface{}) error
}

func newBridge(c rpcCaller) *bridge {
	return &bridge{client: c}
}

func (b *bridge) start(activeLayer, topLayer, baseLayer, device string, speed int64) (rpc.StartResponse, error) {
	var resp rpc.StartResponse
	req := rpc.StartRequest{
		Active: activeLayer,
		Top:    topLayer,
		Base:   baseLayer,
		Device: device,
		Speed:  speed,
	}
	err := b.client.Call(context.Background(), "commit_start", req, &resp)
	return resp, err
}

func (b *bridge) setSpeed(jobID string, speed int64) error {
	return b.client.Call(context.Background(), "commit_set_speed", rpc.SetSpeedRequest{JobID: jobID, Speed: speed}, nil)
}

func (b *bridge) pause(jobID string) error {
	return b.client.Call(context.Background(), "commit_pause", jobID, nil)
}

func (b *bridge) resume(jobID string, speed int64) error {
	return b.client.Call(context.Background(), "commit_resume", rpc.SetSpeedRequest{JobID: jobID, Speed: speed}, nil)
}

func (b *bridge) cancel(jobID string) error {
	return b.client.Call(context.Background(), "commit_cancel", jobID, nil)
}

func (b *bridge) progress(jobID string) (rpc.ProgressResponse, error) {
	var resp rpc.ProgressResponse
	err := b.client.Call(context.Background(), "commit_progress", jobID, &resp)
	return resp, err
}

// inProcessCaller adapts an in-process *rpc.Handler to rpcCaller for
// consoles embedded directly in imgcommitd, skipping the IPC
// round-trip entirely.
type inProcessCaller struct {
	h *rpc.Handler
}

func newInProcessCaller(h *rpc.Handler) *inProcessCaller {
	return &inProcessCaller{h: h}
}

func (c *inProcessCaller) Call(ctx context.Context, method string, params, result interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var out interface{}
	switch method {
	case "commit_start":
		var req rpc.StartRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}
		out, err = c.h.Start(ctx, req)
	case "commit_set_speed":
		var req rpc.SetSpeedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}
		err = c.h.SetSpeed(req)
	case "commit_pause":
		var jobID string
		if err := json.Unmarshal(raw, &jobID); err != nil {
			return err
		}
		err = c.h.Pause(jobID)
	case "commit_resume":
		var req rpc.SetSpeedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}
		err = c.h.Resume(req)
	case "commit_cancel":
		var jobID string
		if err := json.Unmarshal(raw, &jobID); err != nil {
			return err
		}
		err = c.h.Cancel(jobID)
	case "commit_progress":
		var jobID string
		if err := json.Unmarshal(raw, &jobID); err != nil {
			return err
		}
		out, err = c.h.Progress(jobID)
	}
	if err != nil || result == nil {
		return err
	}
	reraw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(reraw, result)
}
