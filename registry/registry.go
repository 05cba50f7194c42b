// Package registry enforces the block layer's one-job-per-device rule
// and gives the commit engine somewhere to publish sectors that are
// currently stuck in the soft-error retry loop, for operator
// diagnostics.
package registry

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set"
)

// Registry tracks which devices currently have a running job attached
// and which sectors, across all jobs, are livelocked in a retry loop.
type Registry struct {
	mu    sync.Mutex
	busy  mapset.Set
	retry mapset.Set // "device:sector" entries currently retrying
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		busy:  mapset.NewThreadUnsafeSet(),
		retry: mapset.NewThreadUnsafeSet(),
	}
}

// Acquire marks device as owned by a job. It reports false if the
// device was already owned by another job — the DeviceInUse gate.
func (r *Registry) Acquire(device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy.Contains(device) {
		return false
	}
	r.busy.Add(device)
	return true
}

// Release frees device so a future job can claim it.
func (r *Registry) Release(device string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy.Remove(device)
}

// InUse reports whether device currently has an owning job.
func (r *Registry) InUse(device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy.Contains(device)
}

// MarkRetrying records that sector on device is stuck in the
// IGNORE-policy soft-error retry loop.
func (r *Registry) MarkRetrying(device string, sector int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry.Add(retryKey(device, sector))
}

// ClearRetrying removes the retry marker for sector on device, once
// the soft error clears and the loop moves on.
func (r *Registry) ClearRetrying(device string, sector int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry.Remove(retryKey(device, sector))
}

// RetryingCount reports how many (device, sector) pairs are currently
// stuck in a soft-error retry loop, across all jobs.
func (r *Registry) RetryingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retry.Cardinality()
}

func retryKey(device string, sector int64) string {
	return fmt.Sprintf("%s:%d", device, sector)
}
