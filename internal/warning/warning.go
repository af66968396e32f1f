// Package warning provides the operator-facing warning sink.
package warning

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
)

// Severity levels understood by the sink.
const (
	SeverityInfo     = "INFO"
	SeverityWarn     = "WARN"
	SeverityCritical = "CRITICAL"
)

// Sink receives operational warnings. Implementations must be fire-and-forget:
// never block and never fail the caller.
type Sink interface {
	AddWarning(code, severity, msg, component string)
}

// Entry is one recorded warning.
type Entry struct {
	Code      string
	Severity  string
	Message   string
	Component string
	At        time.Time
}

// Store keeps the most recent warnings in a fixed-size ring and mirrors each
// one to the logger. It is the default Sink implementation.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	log     *log.Logger
}

// NewStore creates a store retaining the last capacity warnings.
func NewStore(capacity int, logger *log.Logger) *Store {
	if capacity < 1 {
		capacity = 256
	}
	return &Store{
		entries: make([]Entry, capacity),
		log:     logger,
	}
}

// AddWarning records a warning and logs it at a level matching the severity.
func (s *Store) AddWarning(code, severity, msg, component string) {
	e := Entry{
		Code:      code,
		Severity:  severity,
		Message:   msg,
		Component: component,
		At:        time.Now(),
	}

	s.mu.Lock()
	s.entries[s.next] = e
	s.next++
	if s.next == len(s.entries) {
		s.next = 0
		s.full = true
	}
	s.mu.Unlock()

	fields := logrus.Fields{
		"code":      code,
		"severity":  severity,
		"component": component,
	}
	switch severity {
	case SeverityCritical:
		s.log.ErrorWithFields(fields, "%s", msg)
	case SeverityWarn:
		s.log.WarnWithFields(fields, "%s", msg)
	default:
		s.log.InfoWithFields(fields, "%s", msg)
	}
}

// Recent returns the retained warnings, oldest first.
func (s *Store) Recent() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		out := make([]Entry, s.next)
		copy(out, s.entries[:s.next])
		return out
	}
	out := make([]Entry, 0, len(s.entries))
	out = append(out, s.entries[s.next:]...)
	out = append(out, s.entries[:s.next]...)
	return out
}

// Noop is a Sink that discards everything. Useful in tests.
type Noop struct{}

// AddWarning implements Sink.
func (Noop) AddWarning(string, string, string, string) {}
