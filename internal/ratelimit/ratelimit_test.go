package ratelimit

import (
	"testing"
	"time"
)

func newLimiter(t *testing.T) *KeyLimiter {
	t.Helper()
	l := New(time.Minute)
	t.Cleanup(l.Stop)
	return l
}

func TestTryAcquireWithinBurst(t *testing.T) {
	l := newLimiter(t)

	// The bucket starts with a full burst of limitPerMinute tokens.
	for i := 0; i < 10; i++ {
		if !l.TryAcquire("key", 10) {
			t.Fatalf("TryAcquire(%d) = false; want true within burst", i)
		}
	}
	if l.TryAcquire("key", 10) {
		t.Error("TryAcquire() = true; want false after burst exhausted")
	}
}

func TestTryAcquireZeroLimitDisables(t *testing.T) {
	l := newLimiter(t)

	for i := 0; i < 100; i++ {
		if !l.TryAcquire("unlimited", 0) {
			t.Fatal("TryAcquire() = false; want true with limit 0")
		}
	}
	if got := l.Len(); got != 0 {
		t.Errorf("Len() = %d; want 0, unlimited keys must not allocate buckets", got)
	}
}

func TestTryAcquireEmptyKeyDisables(t *testing.T) {
	l := newLimiter(t)

	if !l.TryAcquire("", 1) {
		t.Error("TryAcquire(\"\") = false; want true")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := newLimiter(t)

	for i := 0; i < 3; i++ {
		l.TryAcquire("hot", 3)
	}
	if l.TryAcquire("hot", 3) {
		t.Error("hot key admitted past its limit")
	}
	if !l.TryAcquire("cold", 3) {
		t.Error("cold key denied because of the hot key")
	}
}

func TestLimitChangeAppliesToExistingBucket(t *testing.T) {
	l := newLimiter(t)

	for i := 0; i < 2; i++ {
		l.TryAcquire("key", 2)
	}
	if l.TryAcquire("key", 2) {
		t.Fatal("bucket not exhausted at limit 2")
	}

	// Raising the limit raises the burst, admitting more immediately.
	if !l.TryAcquire("key", 10) {
		t.Error("TryAcquire() = false after raising the limit; want true")
	}
}

func TestRemoveStaleEvictsIdleBuckets(t *testing.T) {
	l := New(time.Millisecond)
	defer l.Stop()

	l.TryAcquire("ephemeral", 10)
	if got := l.Len(); got != 1 {
		t.Fatalf("Len() = %d; want 1", got)
	}

	time.Sleep(5 * time.Millisecond)
	l.removeStale()

	if got := l.Len(); got != 0 {
		t.Errorf("Len() = %d; want 0 after stale eviction", got)
	}
}
