// Package ratelimit provides per-key admission control for message dispatch.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter answers non-blocking admission checks per rate-limit key. Exceeding
// a limit is a normal "not now" signal, not an error.
type Limiter interface {
	TryAcquire(key string, limitPerMinute int) bool
}

type keyEntry struct {
	limiter   *rate.Limiter
	perMinute int
	lastSeen  time.Time
}

// KeyLimiter implements Limiter with one token bucket per key. Buckets are
// created lazily and evicted after sitting unused for the cleanup window.
type KeyLimiter struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
	cleanup time.Duration
	stopCh  chan struct{}
	stopped sync.Once
}

// New creates a KeyLimiter whose stale buckets are removed after roughly
// twice cleanupInterval of inactivity.
func New(cleanupInterval time.Duration) *KeyLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &KeyLimiter{
		entries: make(map[string]*keyEntry),
		cleanup: cleanupInterval,
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// TryAcquire reports whether one dispatch for key is admissible right now.
// A non-positive limit disables limiting for the key. Safe for concurrent
// callers on the same key.
func (l *KeyLimiter) TryAcquire(key string, limitPerMinute int) bool {
	if key == "" || limitPerMinute <= 0 {
		return true
	}

	perSecond := rate.Limit(float64(limitPerMinute) / 60.0)
	burst := limitPerMinute
	if burst < 1 {
		burst = 1
	}

	l.mu.Lock()
	entry, exists := l.entries[key]
	if !exists {
		entry = &keyEntry{
			limiter:   rate.NewLimiter(perSecond, burst),
			perMinute: limitPerMinute,
			lastSeen:  time.Now(),
		}
		l.entries[key] = entry
	} else {
		entry.lastSeen = time.Now()
		// The configured limit can change between deliveries of the same key.
		if entry.perMinute != limitPerMinute {
			entry.limiter.SetLimit(perSecond)
			entry.limiter.SetBurst(burst)
			entry.perMinute = limitPerMinute
		}
	}
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *KeyLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *KeyLimiter) removeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-l.cleanup * 2)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(threshold) {
			delete(l.entries, key)
		}
	}
}

// Len returns the number of live buckets.
func (l *KeyLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stop stops the cleanup goroutine.
func (l *KeyLimiter) Stop() {
	l.stopped.Do(func() { close(l.stopCh) })
}
