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

package commit

import (
	"sync"
	"sync/atomic"

	"imgcommit/chain"
	"imgcommit/internal/log"
)

// State is a job's position in its lifecycle.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCancelling
	StateCompleted
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Progress is a point-in-time, read-only view of a job's counters.
type Progress struct {
	Offset int64 // bytes written into Base so far
	Length int64 // size of Top at job start
	Speed  int64 // current target speed, bytes/sec (0 == unlimited)
	Status int   // valid once State is terminal
	State  State
}

// Job is the externally visible control surface for a running commit:
// the "Job Handle" of spec.md §4.4. The commit engine owns the paired
// job record and only ever observes cancellation by polling
// isCancelled; Job itself never touches the adapter.
type Job struct {
	id     string
	device string

	mu       sync.Mutex
	state    State
	offset   int64
	length   int64
	status   int
	cancel   int32 // atomic flag, polled by the engine
	limiter  speedSetter
	callback func(status int)
	called   bool

	log *log.Logger
}

// speedSetter is the subset of *ratelimit.Limiter the Job needs; kept
// as an interface so job.go has no import-time dependency on the
// limiter's concrete type.
type speedSetter interface {
	SetSpeed(bytesPerSec int64) error
	Speed() int64
	Pause()
	Resume()
}

func newJob(id, device string, length int64, limiter speedSetter, callback func(int)) *Job {
	return &Job{
		id:       id,
		device:   device,
		state:    StateCreated,
		length:   length,
		limiter:  limiter,
		callback: callback,
		log:      log.New("job", id, "device", device),
	}
}

// ID returns the job's identifier, assigned at Start.
func (j *Job) ID() string { return j.id }

// SetSpeed reprograms the rate limiter backing this job. A negative
// speed is rejected; 0 means unlimited.
func (j *Job) SetSpeed(bytesPerSec int64) error {
	if err := j.limiter.SetSpeed(bytesPerSec); err != nil {
		return err
	}
	j.mu.Lock()
	j.log.Info("speed updated", "bytes_per_sec", bytesPerSec)
	j.mu.Unlock()
	return nil
}

// Cancel requests cooperative cancellation. It is idempotent and only
// ever raises the flag the engine polls after its per-iteration yield;
// it does not itself stop in-flight adapter I/O.
func (j *Job) Cancel() {
	if atomic.CompareAndSwapInt32(&j.cancel, 0, 1) {
		j.mu.Lock()
		if j.state == StateRunning {
			j.state = StateCancelling
		}
		j.mu.Unlock()
		j.log.Info("cancellation requested")
	}
}

// isCancelled is polled by the engine's main loop.
func (j *Job) isCancelled() bool {
	return atomic.LoadInt32(&j.cancel) == 1
}

// Pause parks the rate limiter so the engine's main loop stops
// admitting bytes while still waking up and checking cancellation
// every slice, exactly as spec.md §4.4 describes. The engine itself
// carries no pause-specific control flow: it only ever observes the
// limiter's delay hint.
func (j *Job) Pause() error {
	j.limiter.Pause()
	j.mu.Lock()
	j.log.Info("job paused")
	j.mu.Unlock()
	return nil
}

// Resume clears a prior Pause and reprograms the target rate.
func (j *Job) Resume(bytesPerSec int64) error {
	j.limiter.Resume()
	return j.SetSpeed(bytesPerSec)
}

// Progress returns a snapshot of the job's counters.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Progress{
		Offset: j.offset,
		Length: j.length,
		Speed:  j.limiter.Speed(),
		Status: j.status,
		State:  j.state,
	}
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()
}

func (j *Job) addOffset(n int64) {
	j.mu.Lock()
	j.offset += n
	j.mu.Unlock()
}

// finish transitions the job to its terminal state and invokes the
// completion callback exactly once. cancelled distinguishes a clean
// cancel (status forced to 0) from a normal completion/error.
func (j *Job) finish(status int, cancelled bool) {
	j.mu.Lock()
	if j.called {
		j.mu.Unlock()
		return
	}
	j.called = true
	switch {
	case cancelled:
		j.state = StateCancelled
		j.status = 0
	case status != 0:
		j.state = StateErrored
		j.status = status
	default:
		j.state = StateCompleted
		j.status = 0
	}
	status = j.status
	cb := j.callback
	j.log.Info("job finished", "state", j.state, "status", status, "offset", j.offset)
	j.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

// layerIdentity is a helper used by Start to turn a chain.Layer into
// its device registry key.
func layerIdentity(l chain.Layer) string {
	if l == nil {
		return ""
	}
	return l.String()
}
