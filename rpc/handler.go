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
	"fmt"
	"sync"

	"imgcommit/chain"
	"imgcommit/commit"
	"imgcommit/internal/log"
	"imgcommit/registry"
)

// LayerResolver turns the layer names carried over the wire into the
// chain.Layer handles the engine needs; imgcommitd implements it over
// whichever backend it was configured with.
type LayerResolver interface {
	Resolve(name string) (chain.Layer, bool)
}

// Handler implements commit_start/commit_set_speed/commit_cancel/
// commit_progress against a single chain.Adapter, shared by the HTTP,
// IPC, and websocket transports.
type Handler struct {
	adapter  chain.Adapter
	reg      *registry.Registry
	resolver LayerResolver
	audit    *registry.AuditLog

	mu   sync.Mutex
	jobs map[string]*commit.Job
	log  *log.Logger
}

// NewHandler constructs a Handler. audit may be nil to disable
// lifecycle auditing.
func NewHandler(adapter chain.Adapter, reg *registry.Registry, resolver LayerResolver, audit *registry.AuditLog) *Handler {
	return &Handler{
		adapter:  adapter,
		reg:      reg,
		resolver: resolver,
		audit:    audit,
		jobs:     make(map[string]*commit.Job),
		log:      log.New("component", "rpc"),
	}
}

func (h *Handler) onError(name string) (commit.OnError, error) {
	switch name {
	case "", "report":
		return commit.Report, nil
	case "ignore":
		return commit.Ignore, nil
	case "stop-any":
		return commit.StopAny, nil
	case "stop-enospc":
		return commit.StopENOSPC, nil
	default:
		return 0, fmt.Errorf("rpc: unknown on-error policy %q", name)
	}
}

// Start handles commit_start.
func (h *Handler) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	active, ok := h.resolver.Resolve(req.Active)
	if !ok {
		return StartResponse{}, fmt.Errorf("rpc: unknown layer %q", req.Active)
	}
	top, ok := h.resolver.Resolve(req.Top)
	if !ok {
		return StartResponse{}, fmt.Errorf("rpc: unknown layer %q", req.Top)
	}
	base, ok := h.resolver.Resolve(req.Base)
	if !ok {
		return StartResponse{}, fmt.Errorf("rpc: unknown layer %q", req.Base)
	}
	onErr, err := h.onError(req.OnError)
	if err != nil {
		return StartResponse{}, err
	}

	job, err := commit.Start(ctx, h.adapter, h.reg, commit.StartParams{
		Active:  active,
		Top:     top,
		Base:    base,
		Device:  req.Device,
		Speed:   req.Speed,
		OnError: onErr,
		Callback: func(status int) {
			h.recordFinish(req.Device, status)
		},
	})
	if err != nil {
		return StartResponse{}, err
	}

	h.mu.Lock()
	h.jobs[job.ID()] = job
	h.mu.Unlock()

	if h.audit != nil {
		h.audit.Append(registry.AuditEvent{JobID: job.ID(), Device: req.Device, Kind: "started"})
	}
	return StartResponse{JobID: job.ID()}, nil
}

func (h *Handler) recordFinish(device string, status int) {
	if h.audit == nil {
		return
	}
	kind := "completed"
	if status != 0 {
		kind = "errored"
	}
	h.audit.Append(registry.AuditEvent{Device: device, Kind: kind, Status: status})
}

func (h *Handler) lookup(jobID string) (*commit.Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, ok := h.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("rpc: unknown job %q", jobID)
	}
	return job, nil
}

// SetSpeed handles commit_set_speed.
func (h *Handler) SetSpeed(req SetSpeedRequest) error {
	job, err := h.lookup(req.JobID)
	if err != nil {
		return err
	}
	return job.SetSpeed(req.Speed)
}

// Pause handles commit_pause.
func (h *Handler) Pause(jobID string) error {
	job, err := h.lookup(jobID)
	if err != nil {
		return err
	}
	return job.Pause()
}

// Resume handles commit_resume.
func (h *Handler) Resume(req SetSpeedRequest) error {
	job, err := h.lookup(req.JobID)
	if err != nil {
		return err
	}
	return job.Resume(req.Speed)
}

// Cancel handles commit_cancel.
func (h *Handler) Cancel(jobID string) error {
	job, err := h.lookup(jobID)
	if err != nil {
		return err
	}
	job.Cancel()
	return nil
}

// Progress handles commit_progress.
func (h *Handler) Progress(jobID string) (ProgressResponse, error) {
	job, err := h.lookup(jobID)
	if err != nil {
		return ProgressResponse{}, err
	}
	return toProgressResponse(job.Progress()), nil
}
