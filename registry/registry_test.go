package registry

import "testing"

func TestAcquireReleaseDeviceInUse(t *testing.T) {
	r := New()
	if !r.Acquire("dev-1") {
		t.Fatal("first Acquire should succeed")
	}
	if r.Acquire("dev-1") {
		t.Fatal("second Acquire of the same device should fail")
	}
	if !r.InUse("dev-1") {
		t.Fatal("InUse should report true while acquired")
	}
	r.Release("dev-1")
	if r.InUse("dev-1") {
		t.Fatal("InUse should report false after Release")
	}
	if !r.Acquire("dev-1") {
		t.Fatal("Acquire should succeed again after Release")
	}
}

func TestAcquireIndependentDevices(t *testing.T) {
	r := New()
	if !r.Acquire("dev-1") {
		t.Fatal("Acquire dev-1 should succeed")
	}
	if !r.Acquire("dev-2") {
		t.Fatal("Acquire dev-2 should succeed independently of dev-1")
	}
}

func TestRetryingCount(t *testing.T) {
	r := New()
	r.MarkRetrying("dev-1", 10)
	r.MarkRetrying("dev-1", 20)
	r.MarkRetrying("dev-2", 10)
	if got := r.RetryingCount(); got != 3 {
		t.Fatalf("RetryingCount() = %d, want 3", got)
	}
	r.ClearRetrying("dev-1", 10)
	if got := r.RetryingCount(); got != 2 {
		t.Fatalf("RetryingCount() after clear = %d, want 2", got)
	}
	// Clearing an entry that was never marked must not panic or go
	// negative.
	r.ClearRetrying("dev-3", 999)
	if got := r.RetryingCount(); got != 2 {
		t.Fatalf("RetryingCount() after clearing an absent entry = %d, want 2", got)
	}
}
