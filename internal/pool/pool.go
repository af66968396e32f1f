// Package pool implements the per-message-group FIFO processing pool.
//
// A pool owns a registry of lazily created group queues, one binary lock per
// group, and a bounded set of workers. Workers scan the registry and
// try-acquire group locks instead of waiting on them, so a group whose lock
// is held never blocks progress on other groups. FIFO is guaranteed within a
// group only.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/mediator"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/internal/metrics"
	"github.com/ibs-source/dispatch/router/golang/internal/ratelimit"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

// Submit rejection reasons.
var (
	ErrQueueFull = errors.New("pool queue at capacity")
	ErrStopped   = errors.New("pool is stopped")
)

const (
	// idleWait bounds how long an idle worker parks before rescanning even
	// without a submit signal.
	idleWait = 50 * time.Millisecond

	// DefaultGroupIdleTTL is how long an empty group's queue and lock stay
	// registered before the janitor evicts them.
	DefaultGroupIdleTTL = 5 * time.Minute

	janitorInterval = time.Minute
)

// Config describes one processing pool.
type Config struct {
	Code               string
	Concurrency        int
	QueueCapacity      int
	RateLimitPerMinute int // 0 disables the pool-level limit
	GroupIdleTTL       time.Duration
}

// Pool is the per-pool scheduler ("process pool"). One instance per pool code.
type Pool struct {
	code          string
	queueCapacity int64
	groupIdleTTL  time.Duration

	// queued is the live total across all group queues. Submit increments it
	// before appending; the worker pop decrements it. The pair keeps the
	// counter equal to the sum of queue lengths.
	queued atomic.Int64

	groups sync.Map // group id -> *groupState

	concurrency atomic.Int32 // desired worker count
	workers     atomic.Int32 // live worker count
	poolLimit   atomic.Int64 // pool-level rate limit per minute, 0 = off

	med      mediator.Mediator
	callback message.Callback
	limiter  ratelimit.Limiter
	metrics  metrics.Sink
	warnings warning.Sink
	log      *log.Logger

	wake    chan struct{}
	stopCh  chan struct{}
	stopped atomic.Bool
	// medCtx bounds in-flight mediation calls; hard shutdown cancels it.
	medCtx    context.Context
	medCancel context.CancelFunc
	wg        sync.WaitGroup

	janitorStop chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
}

// New creates a pool. Start must be called before pointers are processed.
func New(cfg Config, med mediator.Mediator, cb message.Callback, limiter ratelimit.Limiter,
	sink metrics.Sink, warnings warning.Sink, logger *log.Logger) *Pool {

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = cfg.Concurrency * 2
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = DefaultGroupIdleTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		code:          cfg.Code,
		queueCapacity: int64(cfg.QueueCapacity),
		groupIdleTTL:  cfg.GroupIdleTTL,
		med:           med,
		callback:      cb,
		limiter:       limiter,
		metrics:       sink,
		warnings:      warnings,
		log:           logger,
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		medCtx:        ctx,
		medCancel:     cancel,
		janitorStop:   make(chan struct{}),
	}
	p.concurrency.Store(int32(cfg.Concurrency))
	p.poolLimit.Store(int64(cfg.RateLimitPerMinute))
	return p
}

// Code returns the pool code.
func (p *Pool) Code() string { return p.code }

// QueueCapacity returns the configured capacity shared across groups.
func (p *Pool) QueueCapacity() int { return int(p.queueCapacity) }

// Queued returns the live count of pointers sitting in group queues.
func (p *Pool) Queued() int { return int(p.queued.Load()) }

// Concurrency returns the desired worker count.
func (p *Pool) Concurrency() int { return int(p.concurrency.Load()) }

// HasCapacity reports whether n more pointers fit right now.
func (p *Pool) HasCapacity(n int) bool {
	return p.queued.Load()+int64(n) <= p.queueCapacity
}

// Start launches the workers and the idle-group janitor.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		n := int(p.concurrency.Load())
		for i := 0; i < n; i++ {
			p.spawnWorker()
		}
		p.wg.Add(1)
		go p.janitor()
		p.log.Info("pool %s started with %d workers, capacity %d", p.code, n, p.queueCapacity)
	})
}

// Submit appends the pointer to its group queue. It never blocks: when the
// pool's shared capacity would be exceeded the pointer is rejected and the
// caller must nack it immediately.
func (p *Pool) Submit(ptr *message.Pointer) error {
	if p.stopped.Load() {
		return ErrStopped
	}
	if p.queued.Add(1) > p.queueCapacity {
		p.queued.Add(-1)
		return ErrQueueFull
	}

	gid := ptr.GroupID()
	for {
		gs := p.group(gid)
		if gs.append(ptr, nowNanos()) {
			break
		}
		// Lost the race with the janitor; the evicted state is gone from the
		// registry, so re-resolving creates a fresh one.
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Pool) group(gid string) *groupState {
	if v, ok := p.groups.Load(gid); ok {
		return v.(*groupState)
	}
	v, _ := p.groups.LoadOrStore(gid, newGroupState())
	return v.(*groupState)
}

// UpdateRateLimit changes the pool-level per-minute limit. Zero disables it.
func (p *Pool) UpdateRateLimit(perMinute int) {
	p.poolLimit.Store(int64(perMinute))
}

// UpdateConcurrency resizes the worker set. Growth spawns workers
// immediately; shrink retires workers as they come back to the scan loop.
func (p *Pool) UpdateConcurrency(n int) {
	if n < 1 || p.stopped.Load() {
		return
	}
	old := p.concurrency.Swap(int32(n))
	for i := old; i < int32(n); i++ {
		p.spawnWorker()
	}
	if int32(n) < old {
		p.log.Info("pool %s shrinking workers %d -> %d", p.code, old, n)
	}
}

func (p *Pool) spawnWorker() {
	p.workers.Add(1)
	p.wg.Add(1)
	go p.workerLoop()
}

// Shutdown stops the pool. With drain=true workers finish the message they
// already pulled; without it in-flight mediation calls are canceled. Either
// way every pointer still sitting in a group queue is nacked, never dropped.
func (p *Pool) Shutdown(drain bool) {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.janitorStop)
		if !drain {
			p.medCancel()
		}
		// Wake every parked worker so they observe the stop flag.
		close(p.stopCh)
		p.wg.Wait()
		p.medCancel()
		p.nackRemaining()
		p.log.Info("pool %s stopped (drain=%v)", p.code, drain)
	})
}

func (p *Pool) nackRemaining() {
	p.groups.Range(func(_, v interface{}) bool {
		gs := v.(*groupState)
		for _, ptr := range gs.drain() {
			p.queued.Add(-1)
			p.callback.Nack(ptr)
		}
		return true
	})
}

// workerLoop scans the group registry for work. Locks are only ever
// try-acquired: a group owned by another worker is skipped immediately so a
// hot group cannot stall progress elsewhere.
func (p *Pool) workerLoop() {
	defer p.wg.Done()

	for {
		if p.stopped.Load() {
			p.workers.Add(-1)
			return
		}
		if p.tryRetire() {
			return
		}

		if p.scanOnce() {
			continue
		}

		select {
		case <-p.wake:
		case <-p.stopCh:
		case <-time.After(idleWait):
		}
	}
}

// tryRetire atomically claims one retirement slot after a concurrency shrink,
// so exactly old-minus-new workers exit.
func (p *Pool) tryRetire() bool {
	for {
		w := p.workers.Load()
		if w <= p.concurrency.Load() {
			return false
		}
		if p.workers.CompareAndSwap(w, w-1) {
			return true
		}
	}
}

// scanOnce walks the registry and processes at most one pointer. Returns
// false when a full scan found no acquirable work.
func (p *Pool) scanOnce() bool {
	found := false
	p.groups.Range(func(_, v interface{}) bool {
		gs := v.(*groupState)
		if gs.size() == 0 {
			return true
		}
		if !gs.tryLock() {
			return true
		}

		ptr, ok := gs.pop(nowNanos())
		if !ok {
			// Drained between the size check and the pop.
			gs.unlock()
			return true
		}
		p.queued.Add(-1)
		found = true

		func() {
			defer gs.unlock()
			p.processOne(ptr)
		}()
		return false
	})
	return found
}

// processOne runs the per-message pipeline with the group lock held. Nothing
// escapes it: panics become failures, and the started/finished metrics pair
// fires exactly once regardless of the path taken.
func (p *Pool) processOne(ptr *message.Pointer) {
	p.metrics.RecordProcessingStarted(p.code)
	defer p.metrics.RecordProcessingFinished(p.code)

	start := time.Now()
	disposed := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		elapsed := time.Since(start).Milliseconds()
		p.metrics.RecordProcessingFailure(p.code, elapsed, "EXCEPTION_PANIC")
		p.log.ErrorWithFields(logrus.Fields{
			"pool":      p.code,
			"messageId": ptr.ID,
		}, "recovered panic in message pipeline: %v", r)
		if !disposed {
			p.callback.Nack(ptr)
		}
	}()

	if !p.admit(ptr) {
		p.metrics.RecordRateLimitExceeded(p.code)
		disposed = true
		p.callback.Nack(ptr)
		return
	}

	res := p.med.Process(p.medCtx, ptr)
	elapsed := time.Since(start).Milliseconds()
	disposed = true
	p.dispose(ptr, res, elapsed)
}

// admit consults the pool-level limit, then the pointer's own key.
func (p *Pool) admit(ptr *message.Pointer) bool {
	if limit := int(p.poolLimit.Load()); limit > 0 {
		if !p.limiter.TryAcquire("pool:"+p.code, limit) {
			return false
		}
	}
	if ptr.RateLimitKey != "" {
		return p.limiter.TryAcquire(ptr.RateLimitKey, ptr.RateLimitPerMinute)
	}
	return true
}

// dispose maps the mediation outcome to ack/nack. ERROR_CONFIG is acked with
// a critical warning so a permanently misconfigured target cannot cause an
// infinite retry storm.
func (p *Pool) dispose(ptr *message.Pointer, res mediator.Result, elapsedMs int64) {
	switch res.Outcome {
	case message.Success:
		p.metrics.RecordProcessingSuccess(p.code, elapsedMs)
		p.callback.Ack(ptr)

	case message.ErrorConfig:
		p.metrics.RecordProcessingFailure(p.code, elapsedMs, res.Outcome.String())
		p.warnings.AddWarning("MEDIATION_CONFIG", warning.SeverityCritical,
			fmt.Sprintf("message %s acked after permanent-looking failure from %s: %s",
				ptr.ID, ptr.MediationTarget, res.Detail),
			"pool:"+p.code)
		p.callback.Ack(ptr)

	default:
		p.metrics.RecordProcessingFailure(p.code, elapsedMs, res.Outcome.String())
		p.nackWithOptionalDelay(ptr, res.DelaySeconds)
	}
}

func (p *Pool) nackWithOptionalDelay(ptr *message.Pointer, delaySeconds int) {
	if delaySeconds > 0 {
		if dn, ok := p.callback.(message.DelayedNacker); ok {
			dn.NackWithDelay(ptr, delaySeconds)
			return
		}
	}
	p.callback.Nack(ptr)
}

// janitor evicts group queue/lock pairs that drained and stayed idle for the
// TTL, keeping the registry O(active groups) under high-cardinality ids.
func (p *Pool) janitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.janitorStop:
			return
		case <-ticker.C:
			p.evictIdleGroups()
		}
	}
}

func (p *Pool) evictIdleGroups() {
	idleBefore := time.Now().Add(-p.groupIdleTTL).UnixNano()
	evicted := 0

	p.groups.Range(func(k, v interface{}) bool {
		gs := v.(*groupState)
		// Owning the lock guarantees no worker is inside the group.
		if !gs.tryLock() {
			return true
		}
		if gs.markEvicted(idleBefore) {
			p.groups.Delete(k)
			evicted++
		}
		gs.unlock()
		return true
	})

	if evicted > 0 {
		p.log.Debug("pool %s evicted %d idle groups", p.code, evicted)
	}
}

// GroupCount returns the number of registered groups, for monitoring and the
// eviction tests.
func (p *Pool) GroupCount() int {
	n := 0
	p.groups.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
