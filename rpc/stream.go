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
	"time"

	"golang.org/x/net/websocket"

	"imgcommit/internal/log"
)

// pollInterval is how often the stream re-reads a job's progress and
// pushes a new frame.
const pollInterval = 250 * time.Millisecond

// StreamHandler returns a websocket.Handler that streams jobID's
// progress as protobuf-encoded frames (see proto.go) until the job
// reaches a terminal state or the client disconnects.
func StreamHandler(h *Handler, jobID string) websocket.Handler {
	return func(ws *websocket.Conn) {
		defer ws.Close()
		ws.PayloadType = websocket.BinaryFrame

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for range ticker.C {
			resp, err := h.Progress(jobID)
			if err != nil {
				log.Warn("stream: progress lookup failed", "job", jobID, "err", err)
				return
			}
			frame, err := encodeProgress(resp)
			if err != nil {
				log.Warn("stream: encode failed", "job", jobID, "err", err)
				return
			}
			if _, err := ws.Write(frame); err != nil {
				return // client disconnected
			}
			if resp.Status != 0 || terminal(resp.State) {
				return
			}
		}
	}
}

func terminal(state string) bool {
	switch state {
	case "completed", "cancelled", "errored":
		return true
	default:
		return false
	}
}
