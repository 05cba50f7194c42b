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

// Package rpc exposes the commit job's external interfaces over HTTP,
// a unix-domain/named-pipe IPC socket, and a websocket progress
// stream, all driven by the same Handler so the three transports
// never diverge in behaviour.
package rpc

import "imgcommit/commit"

// StartRequest is the commit_start request body.
type StartRequest struct {
	Active, Top, Base string
	Device            string
	Speed             int64
	OnError           string
}

// StartResponse echoes the created job's identifier.
type StartResponse struct {
	JobID string `json:"job_id"`
}

// SetSpeedRequest is the commit_set_speed request body.
type SetSpeedRequest struct {
	JobID string
	Speed int64
}

// ProgressResponse mirrors commit.Progress over the wire.
type ProgressResponse struct {
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Speed  int64  `json:"speed"`
	Status int    `json:"status"`
	State  string `json:"state"`
}

func toProgressResponse(p commit.Progress) ProgressResponse {
	return ProgressResponse{
		Offset: p.Offset,
		Length: p.Length,
		Speed:  p.Speed,
		Status: p.Status,
		State:  p.State.String(),
	}
}

// ErrorResponse is the envelope for a failed call.
type ErrorResponse struct {
	Error string `json:"error"`
}
