package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/mediator"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/internal/pool"
)

// fakeMediator runs the given function for every pointer
type fakeMediator struct {
	fn func(p *message.Pointer) mediator.Result
}

func (m *fakeMediator) Process(_ context.Context, p *message.Pointer) mediator.Result {
	if m.fn == nil {
		return mediator.Result{Outcome: message.Success}
	}
	return m.fn(p)
}

// sourceCallback records settlements the way a queue source would see them
type sourceCallback struct {
	mu     sync.Mutex
	acked  []string
	nacked []string
	delays map[string]int
}

func (c *sourceCallback) Ack(p *message.Pointer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, p.ID)
}

func (c *sourceCallback) Nack(p *message.Pointer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nacked = append(c.nacked, p.ID)
}

func (c *sourceCallback) NackWithDelay(p *message.Pointer, seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delays == nil {
		c.delays = make(map[string]int)
	}
	c.delays[p.ID] = seconds
}

func (c *sourceCallback) counts() (acks, nacks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acked), len(c.nacked)
}

// recordingWarnings collects warning codes
type recordingWarnings struct {
	mu    sync.Mutex
	codes []string
}

func (w *recordingWarnings) AddWarning(code, _, _, _ string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.codes = append(w.codes, code)
}

func (w *recordingWarnings) count(code string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.codes {
		if c == code {
			n++
		}
	}
	return n
}

// noopSink discards metrics
type noopSink struct{}

func (noopSink) RecordProcessingStarted(string)                {}
func (noopSink) RecordProcessingFinished(string)               {}
func (noopSink) RecordProcessingSuccess(string, int64)         {}
func (noopSink) RecordProcessingFailure(string, int64, string) {}
func (noopSink) RecordRateLimitExceeded(string)                {}

// allowLimiter admits everything
type allowLimiter struct{}

func (allowLimiter) TryAcquire(string, int) bool { return true }

func ptr(id, poolCode string) *message.Pointer {
	return &message.Pointer{
		ID:              id,
		PoolCode:        poolCode,
		MediationType:   message.MediationTypeHTTP,
		MediationTarget: "http://localhost/mediate",
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestRouter(med mediator.Mediator, warnings *recordingWarnings, cfgs ...pool.Config) *Router {
	if med == nil {
		med = &fakeMediator{}
	}
	r := New(med, allowLimiter{}, noopSink{}, warnings, log.New(), Options{})
	r.Start()
	r.Reconcile(cfgs)
	return r
}

func TestRouteDispatchesAndAcks(t *testing.T) {
	warnings := &recordingWarnings{}
	r := newTestRouter(nil, warnings, pool.Config{Code: "A", Concurrency: 2, QueueCapacity: 10})
	defer r.Stop(true, time.Second)

	cb := &sourceCallback{}
	if !r.Route(ptr("m1", "A"), cb) {
		t.Fatal("Route() = false; want true")
	}

	waitFor(t, 2*time.Second, func() bool {
		acks, _ := cb.counts()
		return acks == 1
	})

	if got := r.InflightCount(); got != 0 {
		t.Errorf("InflightCount() = %d; want 0 after ack", got)
	}
}

func TestRouteSuppressesDuplicateID(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	med := &fakeMediator{fn: func(_ *message.Pointer) mediator.Result {
		close(started)
		<-release
		return mediator.Result{Outcome: message.Success}
	}}

	warnings := &recordingWarnings{}
	r := newTestRouter(med, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 10})

	first := &sourceCallback{}
	if !r.Route(ptr("dup", "A"), first) {
		t.Fatal("first Route() = false; want true")
	}
	<-started

	// Redelivery of the same id while the first copy is in flight.
	second := &sourceCallback{}
	if r.Route(ptr("dup", "A"), second) {
		t.Error("duplicate Route() = true; want false")
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool {
		acks, _ := first.counts()
		return acks == 1
	})
	r.Stop(true, time.Second)

	// The duplicate is neither acked nor nacked: its redelivery cycle settles it.
	acks, nacks := second.counts()
	if acks != 0 || nacks != 0 {
		t.Errorf("duplicate callback acks/nacks = %d/%d; want 0/0", acks, nacks)
	}
}

func TestRouteUnknownPoolNacksWithWarning(t *testing.T) {
	warnings := &recordingWarnings{}
	r := newTestRouter(nil, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 10})
	defer r.Stop(true, time.Second)

	cb := &sourceCallback{}
	if r.Route(ptr("m1", "NOPE"), cb) {
		t.Error("Route() = true; want false for unknown pool")
	}

	_, nacks := cb.counts()
	if nacks != 1 {
		t.Errorf("nacks = %d; want 1", nacks)
	}
	if got := warnings.count("UNKNOWN_POOL"); got != 1 {
		t.Errorf("UNKNOWN_POOL warnings = %d; want 1", got)
	}
	if got := r.InflightCount(); got != 0 {
		t.Errorf("InflightCount() = %d; want 0", got)
	}
}

func TestRouteBackpressureNacks(t *testing.T) {
	release := make(chan struct{})
	med := &fakeMediator{fn: func(_ *message.Pointer) mediator.Result {
		<-release
		return mediator.Result{Outcome: message.Success}
	}}

	warnings := &recordingWarnings{}
	r := newTestRouter(med, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 2})

	cb := &sourceCallback{}
	accepted := 0
	rejected := 0
	for i := 0; i < 6; i++ {
		if r.Route(ptr(fmt.Sprintf("m%d", i), "A"), cb) {
			accepted++
		} else {
			rejected++
		}
	}

	if accepted > 3 {
		t.Errorf("accepted = %d; want at most capacity+1", accepted)
	}
	if rejected == 0 {
		t.Error("rejected = 0; want backpressure rejections")
	}

	_, nacks := cb.counts()
	if nacks != rejected {
		t.Errorf("nacks = %d; want %d (one per rejection)", nacks, rejected)
	}

	close(release)
	r.Stop(true, 2*time.Second)
}

func TestDoubleAckWarns(t *testing.T) {
	warnings := &recordingWarnings{}
	r := newTestRouter(nil, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 10})
	defer r.Stop(true, time.Second)

	p := ptr("ghost", "A")
	r.Ack(p)

	if got := warnings.count("DOUBLE_ACK"); got != 1 {
		t.Errorf("DOUBLE_ACK warnings = %d; want 1", got)
	}
}

func TestNackWithDelayRelaysToSource(t *testing.T) {
	med := &fakeMediator{fn: func(_ *message.Pointer) mediator.Result {
		return mediator.Result{Outcome: message.ErrorProcess, DelaySeconds: 90}
	}}

	warnings := &recordingWarnings{}
	r := newTestRouter(med, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 10})
	defer r.Stop(true, time.Second)

	cb := &sourceCallback{}
	if !r.Route(ptr("m1", "A"), cb) {
		t.Fatal("Route() = false; want true")
	}

	waitFor(t, 2*time.Second, func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return len(cb.delays) == 1
	})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if got := cb.delays["m1"]; got != 90 {
		t.Errorf("delay = %d; want 90", got)
	}
}

func TestReconcileCreatesUpdatesAndRemoves(t *testing.T) {
	warnings := &recordingWarnings{}
	r := newTestRouter(nil, warnings,
		pool.Config{Code: "A", Concurrency: 2, QueueCapacity: 10},
		pool.Config{Code: "B", Concurrency: 3, QueueCapacity: 10},
	)
	defer r.Stop(true, time.Second)

	if r.Pool("A") == nil || r.Pool("B") == nil {
		t.Fatal("expected pools A and B after initial reconcile")
	}

	r.Reconcile([]pool.Config{
		{Code: "A", Concurrency: 5, QueueCapacity: 10},
		{Code: "C", Concurrency: 1, QueueCapacity: 10},
	})

	if got := r.Pool("A").Concurrency(); got != 5 {
		t.Errorf("pool A concurrency = %d; want 5 after reconcile", got)
	}
	if r.Pool("C") == nil {
		t.Error("pool C missing after reconcile")
	}
	if r.Pool("B") != nil {
		t.Error("pool B still registered after reconcile removed it")
	}
}

func TestStopNacksInflight(t *testing.T) {
	release := make(chan struct{})
	med := &fakeMediator{fn: func(_ *message.Pointer) mediator.Result {
		<-release
		return mediator.Result{Outcome: message.Success}
	}}

	warnings := &recordingWarnings{}
	r := newTestRouter(med, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 5})

	cb := &sourceCallback{}
	for i := 0; i < 4; i++ {
		r.Route(ptr(fmt.Sprintf("m%d", i), "A"), cb)
	}

	done := make(chan struct{})
	go func() {
		r.Stop(true, 2*time.Second)
		close(done)
	}()
	close(release)
	<-done

	// Everything that entered the registry was settled one way or the other.
	acks, nacks := cb.counts()
	if acks+nacks != 4 {
		t.Errorf("acks+nacks = %d; want 4", acks+nacks)
	}
	if got := r.InflightCount(); got != 0 {
		t.Errorf("InflightCount() = %d; want 0 after stop", got)
	}

	// Intake is fenced after stop.
	late := &sourceCallback{}
	if r.Route(ptr("late", "A"), late) {
		t.Error("Route() after Stop = true; want false")
	}
	_, lateNacks := late.counts()
	if lateNacks != 1 {
		t.Errorf("late nacks = %d; want 1", lateNacks)
	}
}

func TestCleanupRemovesStaleEntries(t *testing.T) {
	warnings := &recordingWarnings{}
	r := New(&fakeMediator{}, allowLimiter{}, noopSink{}, warnings, log.New(),
		Options{EntryTTL: time.Millisecond})
	r.Start()
	defer r.Stop(true, time.Second)

	r.inflight.Store("stuck", &entry{
		pointer:    ptr("stuck", "A"),
		callback:   &sourceCallback{},
		enqueuedAt: time.Now().Add(-time.Minute),
	})

	r.cleanupStaleEntries()

	if got := r.InflightCount(); got != 0 {
		t.Errorf("InflightCount() = %d; want 0 after cleanup", got)
	}
	if got := warnings.count("STALE_INFLIGHT"); got != 1 {
		t.Errorf("STALE_INFLIGHT warnings = %d; want 1", got)
	}
}

func TestLeakCheckWarnsWhenRegistryOutgrowsPools(t *testing.T) {
	warnings := &recordingWarnings{}
	r := newTestRouter(nil, warnings, pool.Config{Code: "A", Concurrency: 1, QueueCapacity: 1})
	defer r.Stop(true, time.Second)

	// Capacity+concurrency is 2; three orphan entries is a leak.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("orphan%d", i)
		r.inflight.Store(id, &entry{
			pointer:    ptr(id, "A"),
			callback:   &sourceCallback{},
			enqueuedAt: time.Now(),
		})
	}

	r.checkForLeaks()

	if got := warnings.count("INFLIGHT_LEAK"); got != 1 {
		t.Errorf("INFLIGHT_LEAK warnings = %d; want 1", got)
	}
}
