// Copyright Red Hat, Inc. 2012
//
// This file's control-flow structure (the sleep/cancel/allocation-probe
// main loop) is a Go translation of QEMU's block/commit.c, originally
// authored by Jeff Cody <jcody@redhat.com>, based on stream.c by Stefan
// Hajnoczi.
//
// This work is licensed under the terms of the GNU LGPL, version 2 or
// later. See the COPYING.LIB file in the top-level directory.

// Package commit implements the live-commit job: folding an
// intermediate image layer into an older backing image while the
// active layer stays online. See SPEC_FULL.md §1 for the contract.
package commit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pborman/uuid"

	"imgcommit/chain"
	"imgcommit/internal/log"
	"imgcommit/ratelimit"
	"imgcommit/registry"
)

const (
	// bufferBytes is the scratch buffer size the main loop reads and
	// writes in one shot.
	bufferBytes = 512 * 1024
	// sectorsPerBuffer is the corresponding sector-run length.
	sectorsPerBuffer = bufferBytes / chain.SectorSize

	// allocCacheSize bounds the recent-allocation-probe LRU.
	allocCacheSize = 4096
	// readCacheBytes bounds the fastcache holding recently-read Top
	// sector runs, reused across a write-error retry without a
	// redundant ReadAt.
	readCacheBytes = 8 * 1024 * 1024
)

// StartParams describes a commit triple and its policy, as passed to
// Start.
type StartParams struct {
	Active, Top, Base chain.Layer

	// Device identifies the owning block device for the registry's
	// one-job-per-device rule. If empty, Active's identity is used.
	Device string

	// Speed is the initial target rate in bytes/sec; 0 is unlimited.
	Speed int64

	OnError OnError

	// Callback fires exactly once, with the job's terminal status.
	Callback func(status int)
}

type allocKey struct {
	sector int64
	n      int
}

type allocAnswer struct {
	state   chain.AllocState
	nActual int
}

// engine is the commit state machine's private execution context; one
// instance backs exactly one Job.
type engine struct {
	adapter chain.Adapter
	reg     *registry.Registry
	job     *Job
	limiter *ratelimit.Limiter

	active, top, base, overlay chain.Layer
	device                     string
	onError                    OnError

	reopened map[chain.Layer]chain.OpenFlags // original flags, for teardown restoration

	allocCache *lru.Cache
	readCache  *fastcache.Cache

	log *log.Logger
}

// Start validates a commit triple, creates its job record, and begins
// running the main loop in a background goroutine. On any validation
// failure no job is created and the error is returned synchronously,
// matching spec.md §4.3.
func Start(ctx context.Context, adapter chain.Adapter, reg *registry.Registry, p StartParams) (*Job, error) {
	logger := log.New("component", "commit")

	// 1. on-error policy vs io-status reporting.
	if p.OnError.requiresIOStatus() && !adapter.IOStatusEnabled(p.Active) {
		return nil, ErrInvalidParameterCombination
	}

	// 2 & 3. identity gates.
	if layerIdentity(p.Top) == layerIdentity(p.Active) {
		return nil, ErrTopIsActive
	}
	if layerIdentity(p.Top) == layerIdentity(p.Base) {
		return nil, ErrTopAndBaseIdentical
	}

	// 4. Top must be linked into Active's chain.
	overlay, found := adapter.FindOverlay(ctx, p.Active, p.Top)
	if !found {
		return nil, ErrTopNotFound
	}

	// 5. Widen Base and Overlay to read-write, atomically.
	var queue []chain.ReopenRequest
	for _, l := range []chain.Layer{p.Base, overlay} {
		flags, err := adapter.GetFlags(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("commit: get flags: %w", err)
		}
		if flags == chain.ReadOnly {
			queue = append(queue, chain.ReopenRequest{Layer: l, Flags: chain.ReadWrite})
		}
	}
	if len(queue) > 0 {
		if err := adapter.ReopenMultiple(ctx, queue); err != nil {
			return nil, fmt.Errorf("%w: %v", chain.ErrReopenFailed, err)
		}
	}

	// 6. Claim the device. Note: per spec.md §9.1, a DeviceInUse
	// rejection here does NOT revert the flag widening just performed
	// — preserve that documented edge case rather than mask it.
	device := p.Device
	if device == "" {
		device = layerIdentity(p.Active)
	}
	if !reg.Acquire(device) {
		return nil, ErrDeviceInUse
	}

	length, err := adapter.Length(ctx, p.Top)
	if err != nil {
		reg.Release(device)
		return nil, fmt.Errorf("commit: length(top): %w", err)
	}

	limiter := ratelimit.New(p.Speed)
	job := newJob(uuid.New(), device, length, limiter, p.Callback)

	reopened := make(map[chain.Layer]chain.OpenFlags, len(queue))
	for _, r := range queue {
		reopened[r.Layer] = chain.ReadOnly // original flags, restored at teardown
	}

	allocCache, _ := lru.New(allocCacheSize)

	e := &engine{
		adapter:    adapter,
		reg:        reg,
		job:        job,
		limiter:    limiter,
		active:     p.Active,
		top:        p.Top,
		base:       p.Base,
		overlay:    overlay,
		device:     device,
		onError:    p.OnError,
		reopened:   reopened,
		allocCache: allocCache,
		readCache:  fastcache.New(readCacheBytes),
		log:        logger.New("job", job.ID(), "device", device),
	}

	job.setRunning()
	go e.run(ctx)
	return job, nil
}

func (e *engine) run(ctx context.Context) {
	status := e.mainLoop(ctx)
	cancelled := e.job.isCancelled() && status == 0
	e.teardown(ctx)
	e.job.finish(status, cancelled)
	e.reg.Release(e.device)
}

// mainLoop walks Top from sector 0, copying every allocated run into
// Base, exactly as spec.md §4.3 describes. It returns the terminal
// status: 0 on clean completion or cancellation, a negative errno-like
// code on a fatal error.
func (e *engine) mainLoop(ctx context.Context) int {
	topLen, err := e.adapter.Length(ctx, e.top)
	if err != nil {
		e.log.Error("length(top) failed", "err", err)
		return statusFor(err)
	}
	baseLen, err := e.adapter.Length(ctx, e.base)
	if err != nil {
		e.log.Error("length(base) failed", "err", err)
		return statusFor(err)
	}
	if baseLen < topLen {
		if err := e.adapter.Truncate(ctx, e.base, topLen); err != nil {
			e.log.Error("truncate(base) failed", "err", err)
			return statusFor(err)
		}
	}

	endSector := (topLen + chain.SectorSize - 1) / chain.SectorSize
	buf := make([]byte, bufferBytes)

	var (
		sector  int64
		delayMs int64
	)
	for sector < endSector {
		// Step 1: mandatory per-iteration yield, even at unlimited
		// speed, so the adapter's own I/O submission path gets to run.
		if err := e.adapter.Sleep(ctx, delayMs); err != nil {
			e.log.Error("sleep failed", "err", err)
			return statusFor(err)
		}
		delayMs = 0

		// Step 2: cancellation is only observed here.
		if e.job.isCancelled() {
			return 0
		}

		want := sectorsPerBuffer
		if remain := endSector - sector; int64(want) > remain {
			want = int(remain)
		}

		state, n, err := e.probeAllocation(ctx, sector, want)
		if err != nil {
			e.log.Error("allocation probe failed", "err", err, "sector", sector)
			return statusFor(err)
		}
		if n <= 0 {
			n = want
		}

		if state == chain.Allocated {
			if !e.limiter.Unlimited() {
				if d := e.limiter.CalculateDelay(int64(n) * chain.SectorSize); d > 0 {
					delayMs = d
					continue // loop back to step 1 without advancing sector
				}
			}

			if err := e.copyRun(ctx, sector, n, buf); err != nil {
				e.reg.MarkRetrying(e.device, sector)
				switch verdict := e.dispatchError(err); verdict {
				case errVerdictStop:
					return statusFor(err)
				case errVerdictRetry:
					// n := 0: re-probe the same sector next iteration.
					continue
				}
			} else {
				e.reg.ClearRetrying(e.device, sector)
				e.job.addOffset(int64(n) * chain.SectorSize)
			}
		}

		sector += int64(n)
	}

	if e.job.isCancelled() {
		return 0
	}
	if err := e.adapter.DropIntermediate(ctx, e.active, e.top, e.base); err != nil {
		e.log.Error("drop_intermediate failed", "err", err)
		return statusFor(err)
	}
	return 0
}

// copyRun reads n sectors from Top and writes them to Base, caching
// the read so a write-only retry doesn't re-read unchanged content.
func (e *engine) copyRun(ctx context.Context, sector int64, n int, buf []byte) error {
	window := buf[:n*chain.SectorSize]

	key := cacheKey(sector)
	if cached, ok := e.readCache.HasGet(nil, key); ok && len(cached) == len(window) {
		copy(window, cached)
	} else {
		if err := e.adapter.ReadAt(ctx, e.top, sector, n, window); err != nil {
			return fmt.Errorf("read top: %w", err)
		}
		e.readCache.Set(key, window)
	}

	if err := e.adapter.WriteAt(ctx, e.base, sector, n, window); err != nil {
		return fmt.Errorf("write base: %w", err)
	}
	e.readCache.Del(key)
	return nil
}

type errVerdict int

const (
	errVerdictStop errVerdict = iota
	errVerdictRetry
)

// dispatchError applies the on-error policy to a read/write failure.
func (e *engine) dispatchError(err error) errVerdict {
	switch e.onError {
	case Report, StopAny:
		return errVerdictStop
	case StopENOSPC:
		if errors.Is(err, chain.ErrENOSPC) {
			return errVerdictStop
		}
		return errVerdictRetry
	default: // Ignore
		return errVerdictRetry
	}
}

// probeAllocation consults the recent-answer cache before falling back
// to the adapter, to dampen repeated probes from the retry loop.
func (e *engine) probeAllocation(ctx context.Context, sector int64, want int) (chain.AllocState, int, error) {
	key := allocKey{sector: sector, n: want}
	if v, ok := e.allocCache.Get(key); ok {
		ans := v.(allocAnswer)
		return ans.state, ans.nActual, nil
	}
	state, n, err := e.adapter.IsAllocatedAbove(ctx, e.top, e.base, sector, want)
	if err != nil {
		return chain.AllocUnknown, 0, err
	}
	e.allocCache.Add(key, allocAnswer{state: state, nActual: n})
	return state, n, nil
}

// teardown always runs: it restores flags widened at Start, best
// effort, and never lets a restore failure override the terminal
// status already decided by mainLoop.
func (e *engine) teardown(ctx context.Context) {
	for layer, original := range e.reopened {
		current, err := e.adapter.GetFlags(ctx, layer)
		if err != nil {
			e.log.Warn("teardown: get flags failed", "layer", layer, "err", err)
			continue
		}
		if current == original {
			continue
		}
		if err := e.adapter.ReopenMultiple(ctx, []chain.ReopenRequest{{Layer: layer, Flags: original}}); err != nil {
			e.log.Warn("teardown: flag restore failed", "layer", layer, "err", err)
		}
	}
}

func cacheKey(sector int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(sector))
	return b[:]
}

// statusFor maps an adapter error to the job's terminal status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, chain.ErrENOSPC):
		return -errENOSPC
	case errors.Is(err, chain.ErrEIO):
		return -errEIO
	default:
		return -1
	}
}
