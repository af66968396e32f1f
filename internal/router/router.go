// Package router implements the intake router: system-wide deduplication of
// inbound pointers, routing to the owning processing pool, and relaying
// ack/nack back to the source that delivered the message.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/mediator"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/internal/metrics"
	"github.com/ibs-source/dispatch/router/golang/internal/pool"
	"github.com/ibs-source/dispatch/router/golang/internal/ratelimit"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

// Hygiene defaults for the in-flight registry.
const (
	DefaultEntryTTL        = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	DefaultLeakInterval    = 30 * time.Second
)

// entry is one in-flight message: present from intake until its ack or nack.
type entry struct {
	pointer    *message.Pointer
	callback   message.Callback
	enqueuedAt time.Time
}

// Options tunes the router's background hygiene loops.
type Options struct {
	EntryTTL        time.Duration
	CleanupInterval time.Duration
	LeakInterval    time.Duration
}

// Router owns the in-flight registry and the pool set. A message id present
// in the registry is never submitted to a pool a second time.
type Router struct {
	poolsMu sync.RWMutex
	pools   map[string]*pool.Pool

	inflight sync.Map // message id -> *entry

	med      mediator.Mediator
	limiter  ratelimit.Limiter
	metrics  metrics.Sink
	warnings warning.Sink
	log      *log.Logger
	opts     Options

	running  sync.Mutex // held during Stop to fence Route
	accepted bool

	loopStop chan struct{}
	loopWg   sync.WaitGroup
	stopOnce sync.Once
}

// New creates a router. Pools are created through Reconcile.
func New(med mediator.Mediator, limiter ratelimit.Limiter, sink metrics.Sink,
	warnings warning.Sink, logger *log.Logger, opts Options) *Router {

	if opts.EntryTTL <= 0 {
		opts.EntryTTL = DefaultEntryTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.LeakInterval <= 0 {
		opts.LeakInterval = DefaultLeakInterval
	}

	return &Router{
		pools:    make(map[string]*pool.Pool),
		med:      med,
		limiter:  limiter,
		metrics:  sink,
		warnings: warnings,
		log:      logger,
		opts:     opts,
		loopStop: make(chan struct{}),
	}
}

// Start marks the router as accepting intake and launches the hygiene loops.
func (r *Router) Start() {
	r.running.Lock()
	r.accepted = true
	r.running.Unlock()

	r.loopWg.Add(2)
	go r.cleanupLoop()
	go r.leakCheckLoop()
	r.log.Info("intake router started")
}

// Route registers the pointer in the in-flight registry and forwards it to
// its pool. Returns false when the pointer was not admitted: duplicate id
// (silently dropped, the earlier delivery is still in flight), unknown pool
// (nacked, configuration warning), pool backpressure (nacked), or shutdown.
func (r *Router) Route(ptr *message.Pointer, cb message.Callback) bool {
	r.running.Lock()
	accepting := r.accepted
	r.running.Unlock()
	if !accepting {
		cb.Nack(ptr)
		return false
	}

	e := &entry{pointer: ptr, callback: cb, enqueuedAt: time.Now()}
	if _, loaded := r.inflight.LoadOrStore(ptr.ID, e); loaded {
		// Redelivery while the first copy is still in flight. The source will
		// redeliver again after its visibility delay if we are still busy.
		r.log.DebugWithFields(logrus.Fields{"messageId": ptr.ID},
			"duplicate delivery suppressed")
		return false
	}

	p := r.Pool(ptr.PoolCode)
	if p == nil {
		r.inflight.Delete(ptr.ID)
		r.warnings.AddWarning("UNKNOWN_POOL", warning.SeverityWarn,
			fmt.Sprintf("no pool configured for code %q, message %s nacked", ptr.PoolCode, ptr.ID),
			"router")
		cb.Nack(ptr)
		return false
	}

	if err := p.Submit(ptr); err != nil {
		r.inflight.Delete(ptr.ID)
		r.log.WarnWithFields(logrus.Fields{
			"pool":      ptr.PoolCode,
			"messageId": ptr.ID,
		}, "pool rejected message: %v", err)
		cb.Nack(ptr)
		return false
	}
	return true
}

// Ack removes the registry entry and acknowledges the message at its source.
// Implements message.Callback for the pools.
func (r *Router) Ack(ptr *message.Pointer) {
	e := r.remove(ptr, "ack")
	if e != nil {
		e.callback.Ack(ptr)
	}
}

// Nack removes the registry entry and makes the message redeliverable.
func (r *Router) Nack(ptr *message.Pointer) {
	e := r.remove(ptr, "nack")
	if e != nil {
		e.callback.Nack(ptr)
	}
}

// NackWithDelay relays a delayed nack when the source supports one, falling
// back to a plain nack otherwise. Implements message.DelayedNacker.
func (r *Router) NackWithDelay(ptr *message.Pointer, seconds int) {
	e := r.remove(ptr, "nack")
	if e == nil {
		return
	}
	if dn, ok := e.callback.(message.DelayedNacker); ok {
		dn.NackWithDelay(ptr, seconds)
		return
	}
	e.callback.Nack(ptr)
}

func (r *Router) remove(ptr *message.Pointer, op string) *entry {
	v, loaded := r.inflight.LoadAndDelete(ptr.ID)
	if !loaded {
		// Double-ack is a bug upstream, not fatal.
		r.warnings.AddWarning("DOUBLE_ACK", warning.SeverityWarn,
			fmt.Sprintf("%s for message %s not in the in-flight registry", op, ptr.ID),
			"router")
		return nil
	}
	return v.(*entry)
}

// Pool returns the pool registered for code, or nil.
func (r *Router) Pool(code string) *pool.Pool {
	r.poolsMu.RLock()
	defer r.poolsMu.RUnlock()
	return r.pools[code]
}

// Reconcile aligns the live pool set with the given configurations: missing
// pools are created and started, existing ones updated in place, and pools no
// longer configured are drained and removed.
func (r *Router) Reconcile(cfgs []pool.Config) {
	seen := make(map[string]bool, len(cfgs))

	for _, cfg := range cfgs {
		seen[cfg.Code] = true

		r.poolsMu.RLock()
		existing := r.pools[cfg.Code]
		r.poolsMu.RUnlock()

		if existing != nil {
			if cfg.Concurrency > 0 && cfg.Concurrency != existing.Concurrency() {
				existing.UpdateConcurrency(cfg.Concurrency)
			}
			existing.UpdateRateLimit(cfg.RateLimitPerMinute)
			continue
		}

		p := pool.New(cfg, r.med, r, r.limiter, r.metrics, r.warnings, r.log)
		p.Start()
		r.poolsMu.Lock()
		r.pools[cfg.Code] = p
		r.poolsMu.Unlock()
		r.log.Info("created pool %s (concurrency=%d capacity=%d)",
			cfg.Code, p.Concurrency(), p.QueueCapacity())
	}

	// Drain pools that fell out of the configuration.
	r.poolsMu.Lock()
	var stale []*pool.Pool
	for code, p := range r.pools {
		if !seen[code] {
			stale = append(stale, p)
			delete(r.pools, code)
		}
	}
	r.poolsMu.Unlock()

	for _, p := range stale {
		go func(p *pool.Pool) {
			p.Shutdown(true)
			r.log.Info("pool %s drained and removed", p.Code())
		}(p)
	}
}

// DrainAndNackAll nacks every entry still in the registry, within the given
// time budget. Last-resort cleanup when the process stops with in-flight work.
func (r *Router) DrainAndNackAll(budget time.Duration) {
	deadline := time.Now().Add(budget)
	nacked, abandoned := 0, 0

	r.inflight.Range(func(key, v interface{}) bool {
		if time.Now().After(deadline) {
			abandoned++
			return true
		}
		e := v.(*entry)
		r.inflight.Delete(key)
		e.callback.Nack(e.pointer)
		nacked++
		return true
	})

	if nacked > 0 || abandoned > 0 {
		r.log.Info("shutdown drain nacked %d in-flight messages (%d abandoned past budget)",
			nacked, abandoned)
	}
}

// Stop fences intake, shuts every pool down and nacks whatever remains.
func (r *Router) Stop(drain bool, budget time.Duration) {
	r.stopOnce.Do(func() {
		r.running.Lock()
		r.accepted = false
		r.running.Unlock()

		close(r.loopStop)
		r.loopWg.Wait()

		r.poolsMu.Lock()
		pools := make([]*pool.Pool, 0, len(r.pools))
		for _, p := range r.pools {
			pools = append(pools, p)
		}
		r.pools = make(map[string]*pool.Pool)
		r.poolsMu.Unlock()

		for _, p := range pools {
			p.Shutdown(drain)
		}

		r.DrainAndNackAll(budget)
		r.log.Info("intake router stopped")
	})
}

// InflightCount returns the registry size, for monitoring.
func (r *Router) InflightCount() int {
	n := 0
	r.inflight.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// cleanupLoop removes registry entries older than the TTL. A message can get
// stuck when a source dies between delivery and ack; leaving its entry would
// block redeliveries of the same id forever.
func (r *Router) cleanupLoop() {
	defer r.loopWg.Done()

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.loopStop:
			return
		case <-ticker.C:
			r.cleanupStaleEntries()
		}
	}
}

func (r *Router) cleanupStaleEntries() {
	cutoff := time.Now().Add(-r.opts.EntryTTL)
	removed := 0

	r.inflight.Range(func(key, v interface{}) bool {
		if v.(*entry).enqueuedAt.Before(cutoff) {
			r.inflight.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		r.warnings.AddWarning("STALE_INFLIGHT", warning.SeverityWarn,
			fmt.Sprintf("removed %d in-flight entries older than %s; messages may have been stuck",
				removed, r.opts.EntryTTL),
			"router")
	}
}

// leakCheckLoop warns when the registry outgrows the total pool capacity,
// which means entries are not being removed after processing.
func (r *Router) leakCheckLoop() {
	defer r.loopWg.Done()

	ticker := time.NewTicker(r.opts.LeakInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.loopStop:
			return
		case <-ticker.C:
			r.checkForLeaks()
		}
	}
}

func (r *Router) checkForLeaks() {
	size := r.InflightCount()

	r.poolsMu.RLock()
	capacity := 0
	for _, p := range r.pools {
		capacity += p.QueueCapacity() + p.Concurrency()
	}
	r.poolsMu.RUnlock()

	if capacity > 0 && size > capacity {
		r.warnings.AddWarning("INFLIGHT_LEAK", warning.SeverityWarn,
			fmt.Sprintf("in-flight registry size (%d) exceeds total pool capacity (%d)",
				size, capacity),
			"router")
	}
}
