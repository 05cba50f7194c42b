// Package ratelimit implements the commit job's I/O pacing limiter: a
// sliding window of fixed-width slices that converts a target
// bytes/second rate into short-horizon sleep hints.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/aristanetworks/goarista/monotime"
	"github.com/holiman/uint256"
)

// Slice is the rate limiter's accounting window.
const Slice = 100 * time.Millisecond

// ErrNegativeSpeed is returned by SetSpeed for a negative rate.
var ErrNegativeSpeed = errors.New("ratelimit: speed must not be negative")

// Limiter paces a stream of byte-sized requests to a target
// bytes-per-second rate. Create one with New; the zero value has no
// quota counters and is not usable. A Limiter is safe for concurrent use,
// though the commit engine only ever drives it from a single
// goroutine.
type Limiter struct {
	mu sync.Mutex

	sliceQuota     *uint256.Int // bytes permitted per Slice
	windowDeadline int64        // monotonic ns marking the current window's end
	dispatched     *uint256.Int // bytes accounted to the current window

	speed     int64 // last configured bytes/sec, 0 == unlimited
	unlimited bool
	paused    bool
}

// New returns a Limiter configured for speed bytes/second. A speed of
// 0 means unlimited.
func New(speedBytesPerSec int64) *Limiter {
	l := &Limiter{
		sliceQuota: new(uint256.Int),
		dispatched: new(uint256.Int),
	}
	l.setSpeedLocked(speedBytesPerSec)
	return l
}

// SetSpeed reprograms the target rate. A speed of 0 disables pacing;
// a negative speed is rejected.
func (l *Limiter) SetSpeed(speedBytesPerSec int64) error {
	if speedBytesPerSec < 0 {
		return ErrNegativeSpeed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setSpeedLocked(speedBytesPerSec)
	return nil
}

func (l *Limiter) setSpeedLocked(speedBytesPerSec int64) {
	l.speed = speedBytesPerSec
	l.unlimited = speedBytesPerSec == 0
	// slice_quota = target_bytes_per_second / 10
	l.sliceQuota.SetUint64(uint64(speedBytesPerSec) / 10)
}

// Unlimited reports whether pacing is currently disabled. A paused
// limiter always reports false here, even at speed 0, so a caller that
// only checks Unlimited before calling CalculateDelay still observes
// the pause.
func (l *Limiter) Unlimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unlimited && !l.paused
}

// Speed returns the last configured target rate in bytes/sec.
func (l *Limiter) Speed() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.speed
}

// Pause blocks forward progress without touching the configured
// speed: CalculateDelay keeps returning a bounded one-slice delay
// instead of admitting bytes, so the caller's cancellation check
// between sleeps still runs on schedule.
func (l *Limiter) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume clears a prior Pause. The next CalculateDelay call resumes
// normal accounting in the current window, or in a fresh one if the
// current window has already ended; paused calls charged nothing.
func (l *Limiter) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

// Paused reports whether the limiter is currently parked by Pause.
func (l *Limiter) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// CalculateDelay accounts for an n-byte request against the current
// window and returns the number of milliseconds the caller should
// sleep before retrying the identical call, or 0 if n has been charged
// and the caller may proceed immediately.
func (l *Limiter) CalculateDelay(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return int64(Slice / time.Millisecond)
	}

	if l.unlimited {
		return 0
	}

	now := monotime.Now()
	if l.windowDeadline == 0 || now >= uint64(l.windowDeadline) {
		l.dispatched.Clear()
		l.windowDeadline = int64(now) + int64(Slice)
	}

	nBig := new(uint256.Int).SetUint64(uint64(n))

	if l.dispatched.IsZero() {
		// Forward-progress clause: a request larger than a single
		// quota must still be allowed to run, or it would never make
		// progress.
		l.dispatched.Add(l.dispatched, nBig)
		return 0
	}

	sum := new(uint256.Int).Add(l.dispatched, nBig)
	if sum.Cmp(l.sliceQuota) <= 0 {
		l.dispatched.Set(sum)
		return 0
	}

	// Reset dispatched to n, pre-charging the next window, and make
	// the caller wait out the remainder of this one.
	l.dispatched.Set(nBig)
	remaining := l.windowDeadline - int64(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining / int64(time.Millisecond)
}
