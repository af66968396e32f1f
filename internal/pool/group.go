package pool

import (
	"sync"
	"time"

	"github.com/ibs-source/dispatch/router/golang/internal/message"
)

// groupState is the per-group FIFO queue plus the binary lock that serializes
// processing of that group. Created lazily on first submit, evicted by the
// janitor once idle.
type groupState struct {
	mu      sync.Mutex
	queue   []*message.Pointer
	evicted bool
	// lastActive is the unix-nano time of the last submit or pop, read by
	// the idle-eviction sweep.
	lastActive int64

	// lock is a capacity-1 semaphore. Holding the token means owning the
	// group: at most one worker processes a group at a time, which is what
	// yields FIFO within the group without a global lock.
	lock chan struct{}
}

func newGroupState() *groupState {
	return &groupState{lock: make(chan struct{}, 1)}
}

// tryLock attempts a non-blocking acquisition of the group.
func (g *groupState) tryLock() bool {
	select {
	case g.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *groupState) unlock() {
	<-g.lock
}

// append adds a pointer to the tail. Returns false when the group was evicted
// between lookup and append; the caller must re-resolve the group.
func (g *groupState) append(p *message.Pointer, now int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.evicted {
		return false
	}
	g.queue = append(g.queue, p)
	g.lastActive = now
	return true
}

// pop removes and returns the head pointer. ok is false when the queue
// drained between the non-empty check and the pop.
func (g *groupState) pop(now int64) (*message.Pointer, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil, false
	}
	p := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	g.lastActive = now
	return p, true
}

// drain removes and returns every queued pointer.
func (g *groupState) drain() []*message.Pointer {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.queue
	g.queue = nil
	return out
}

func (g *groupState) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// markEvicted flags the group for removal if it is still empty and idle.
// Callers must hold the group lock so no worker owns the group.
func (g *groupState) markEvicted(idleBefore int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) > 0 || g.lastActive > idleBefore {
		return false
	}
	g.evicted = true
	return true
}

func nowNanos() int64 { return time.Now().UnixNano() }
