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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imgcommit/backend/memory"
	"imgcommit/chain"
	"imgcommit/registry"
)

// fakeResolver maps wire names directly onto pre-built memory layers.
type fakeResolver map[string]chain.Layer

func (r fakeResolver) Resolve(name string) (chain.Layer, bool) {
	l, ok := r[name]
	return l, ok
}

func newTestHandler(t *testing.T) (*Handler, fakeResolver) {
	t.Helper()
	base := memory.NewLayer("base", nil, 0)
	top := memory.NewLayer("top", base, 4*chain.SectorSize)
	active := memory.NewLayer("active", top, 4*chain.SectorSize)
	top.Seed(0, 4, bytes.Repeat([]byte{0xCD}, 4*chain.SectorSize))

	resolver := fakeResolver{"active": active, "top": top, "base": base}
	backend := memory.New()
	h := NewHandler(backend, registry.New(), resolver, nil)
	return h, resolver
}

func waitTerminal(t *testing.T, h *Handler, jobID string, timeout time.Duration) ProgressResponse {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		resp, err := h.Progress(jobID)
		require.NoError(t, err)
		switch resp.State {
		case "completed", "cancelled", "errored":
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not reach a terminal state in time (last state %q)", jobID, resp.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerStartAndProgress(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := h.Start(context.Background(), StartRequest{Active: "active", Top: "top", Base: "base", Device: "dev-1"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobID)

	final := waitTerminal(t, h, resp.JobID, 2*time.Second)
	require.Equal(t, "completed", final.State)
	require.EqualValues(t, 2048, final.Offset)
}

func TestHandlerStartUnknownLayer(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.Start(context.Background(), StartRequest{Active: "active", Top: "nope", Base: "base"})
	require.Error(t, err)
}

func TestHandlerStartUnknownOnErrorPolicy(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.Start(context.Background(), StartRequest{Active: "active", Top: "top", Base: "base", OnError: "bogus"})
	require.Error(t, err)
}

func TestHandlerSetSpeedUnknownJob(t *testing.T) {
	h, _ := newTestHandler(t)
	err := h.SetSpeed(SetSpeedRequest{JobID: "does-not-exist", Speed: 1024})
	require.Error(t, err)
}

func TestHandlerCancel(t *testing.T) {
	h, _ := newTestHandler(t)
	resp, err := h.Start(context.Background(), StartRequest{
		Active: "active", Top: "top", Base: "base", Device: "dev-2", Speed: 1,
	})
	require.NoError(t, err)

	require.NoError(t, h.Cancel(resp.JobID))
	final := waitTerminal(t, h, resp.JobID, 2*time.Second)
	require.Contains(t, []string{"cancelled", "completed"}, final.State)
}

func TestHandlerProgressUnknownJob(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.Progress("does-not-exist")
	require.Error(t, err)
}

func TestHandlerPauseStallsThenResumeCompletes(t *testing.T) {
	// A large, paced transfer so a real pause window is observable:
	// each ~512KiB chunk after the first costs roughly one slice, so
	// the 8MiB layer takes well over a second to commit unpaused.
	const total = 8 * 1024 * 1024
	base := memory.NewLayer("base", nil, total)
	top := memory.NewLayer("top", base, total)
	active := memory.NewLayer("active", top, total)
	top.Seed(0, total/chain.SectorSize, bytes.Repeat([]byte{0x5}, total))

	backend := memory.New()
	resolver := fakeResolver{"active": active, "top": top, "base": base}
	h := NewHandler(backend, registry.New(), resolver, nil)

	resp, err := h.Start(context.Background(), StartRequest{
		Active: "active", Top: "top", Base: "base", Device: "dev-3", Speed: 512 * 1024,
	})
	require.NoError(t, err)

	require.NoError(t, h.Pause(resp.JobID))

	before, err := h.Progress(resp.JobID)
	require.NoError(t, err)
	time.Sleep(250 * time.Millisecond)
	after, err := h.Progress(resp.JobID)
	require.NoError(t, err)
	require.Equal(t, before.Offset, after.Offset, "a paused job must not advance its offset")
	require.NotEqual(t, "completed", after.State)

	require.NoError(t, h.Resume(SetSpeedRequest{JobID: resp.JobID}))
	final := waitTerminal(t, h, resp.JobID, 5*time.Second)
	require.Equal(t, "completed", final.State)
}

func TestHandlerPauseUnknownJob(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Error(t, h.Pause("does-not-exist"))
}

func TestHandlerResumeUnknownJob(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Error(t, h.Resume(SetSpeedRequest{JobID: "does-not-exist"}))
}
