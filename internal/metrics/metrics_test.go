package metrics

import (
	"testing"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
)

// The sink runs on the global meter provider, which is the no-op provider in
// tests; only the shadow gauge state is observable.

func newSink(t *testing.T) *OTelSink {
	t.Helper()
	s, err := NewOTelSink(log.New())
	if err != nil {
		t.Fatalf("NewOTelSink() error = %v", err)
	}
	return s
}

func TestActiveGaugeTracksPairs(t *testing.T) {
	s := newSink(t)

	s.RecordProcessingStarted("A")
	s.RecordProcessingStarted("A")
	s.RecordProcessingStarted("B")

	s.mu.Lock()
	a, b := s.active["A"], s.active["B"]
	s.mu.Unlock()
	if a != 2 || b != 1 {
		t.Fatalf("active = A:%d B:%d; want A:2 B:1", a, b)
	}

	s.RecordProcessingFinished("A")
	s.RecordProcessingFinished("A")
	s.RecordProcessingFinished("B")

	s.mu.Lock()
	a, b = s.active["A"], s.active["B"]
	s.mu.Unlock()
	if a != 0 || b != 0 {
		t.Errorf("active = A:%d B:%d; want both 0 at quiescence", a, b)
	}
}

func TestFinishedWithoutStartedClampsAtZero(t *testing.T) {
	s := newSink(t)

	s.RecordProcessingFinished("A")
	s.RecordProcessingFinished("A")

	s.mu.Lock()
	defer s.mu.Unlock()
	if got := s.active["A"]; got != 0 {
		t.Errorf("active[A] = %d; want clamped at 0", got)
	}
}

func TestSuccessAndFailureDoNotTouchGauge(t *testing.T) {
	s := newSink(t)

	s.RecordProcessingSuccess("A", 12)
	s.RecordProcessingFailure("A", 30, "ERROR_SERVER")
	s.RecordRateLimitExceeded("A")

	s.mu.Lock()
	defer s.mu.Unlock()
	if got := s.active["A"]; got != 0 {
		t.Errorf("active[A] = %d; want 0", got)
	}
}

func TestNoopSatisfiesSink(t *testing.T) {
	var s Sink = Noop{}
	s.RecordProcessingStarted("A")
	s.RecordProcessingFinished("A")
	s.RecordProcessingSuccess("A", 1)
	s.RecordProcessingFailure("A", 1, "X")
	s.RecordRateLimitExceeded("A")
}
