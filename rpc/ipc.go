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

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"

	npipe "gopkg.in/natefinch/npipe.v2"

	"imgcommit/internal/log"
)

// ipcRequest is the newline-delimited JSON envelope spoken over the
// IPC transport; method names match the HTTP route they mirror.
type ipcRequest struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type ipcResponse struct {
	ID     int         `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ListenIPC opens the platform-appropriate local endpoint: a unix
// socket at endpoint on Unix, or a named pipe of that name on
// Windows.
func ListenIPC(endpoint string) (net.Listener, error) {
	if runtime.GOOS == "windows" {
		return npipe.Listen(endpoint)
	}
	return net.Listen("unix", endpoint)
}

// ServeIPC accepts connections on l, serving h's methods as
// newline-delimited JSON-RPC requests, one goroutine per connection.
func ServeIPC(l net.Listener, h *Handler) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		log.Trace("ipc accepted connection", "remote", conn.RemoteAddr())
		go serveIPCConn(conn, h)
	}
}

func serveIPCConn(conn net.Conn, h *Handler) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req ipcRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		result, err := dispatch(h, req)
		resp := ipcResponse{ID: req.ID, Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := enc.Encode(resp); err != nil {
			log.Warn("ipc encode failed", "err", err)
			return
		}
	}
}

func dispatch(h *Handler, req ipcRequest) (interface{}, error) {
	switch req.Method {
	case "commit_start":
		var p StartRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("rpc: bad params: %w", err)
		}
		return h.Start(context.Background(), p)
	case "commit_set_speed":
		var p SetSpeedRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("rpc: bad params: %w", err)
		}
		return nil, h.SetSpeed(p)
	case "commit_pause":
		var jobID string
		if err := json.Unmarshal(req.Params, &jobID); err != nil {
			return nil, fmt.Errorf("rpc: bad params: %w", err)
		}
		return nil, h.Pause(jobID)
	case "commit_resume":
		var p SetSpeedRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("rpc: bad params: %w", err)
		}
		return nil, h.Resume(p)
	case "commit_cancel":
		var jobID string
		if err := json.Unmarshal(req.Params, &jobID); err != nil {
			return nil, fmt.Errorf("rpc: bad params: %w", err)
		}
		return nil, h.Cancel(jobID)
	case "commit_progress":
		var jobID string
		if err := json.Unmarshal(req.Params, &jobID); err != nil {
			return nil, fmt.Errorf("rpc: bad params: %w", err)
		}
		return h.Progress(jobID)
	default:
		return nil, fmt.Errorf("rpc: unknown method %q", req.Method)
	}
}

// DialIPC connects to endpoint (a unix socket path, or a named pipe
// identifier on Windows) and issues method with params, decoding the
// result into result.
func DialIPC(ctx context.Context, endpoint, method string, params, result interface{}) error {
	var conn net.Conn
	var err error
	if runtime.GOOS == "windows" {
		conn, err = npipe.DialTimeout(endpoint, 0)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "unix", endpoint)
	}
	if err != nil {
		return fmt.Errorf("rpc: dial ipc %s: %w", endpoint, err)
	}
	defer conn.Close()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(ipcRequest{ID: 1, Method: method, Params: raw}); err != nil {
		return fmt.Errorf("rpc: send request: %w", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("rpc: %s", resp.Error)
	}
	if result == nil {
		return nil
	}
	raw, err = json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("rpc: re-marshal result: %w", err)
	}
	return json.Unmarshal(raw, result)
}
