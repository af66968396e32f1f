package warning

import (
	"fmt"
	"testing"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
)

func TestAddWarningAndRecent(t *testing.T) {
	s := NewStore(8, log.New())

	s.AddWarning("UNKNOWN_POOL", SeverityWarn, "no pool for code X", "router")
	s.AddWarning("MEDIATION_CONFIG", SeverityCritical, "target returned 401", "pool:A")

	recent := s.Recent()
	if len(recent) != 2 {
		t.Fatalf("Recent() returned %d entries; want 2", len(recent))
	}
	if recent[0].Code != "UNKNOWN_POOL" || recent[1].Code != "MEDIATION_CONFIG" {
		t.Errorf("Recent() order = %s, %s; want oldest first", recent[0].Code, recent[1].Code)
	}
	if recent[1].Severity != SeverityCritical {
		t.Errorf("Severity = %s; want %s", recent[1].Severity, SeverityCritical)
	}
	if recent[0].At.IsZero() {
		t.Error("At not populated")
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	s := NewStore(3, log.New())

	for i := 0; i < 5; i++ {
		s.AddWarning(fmt.Sprintf("W%d", i), SeverityInfo, "msg", "test")
	}

	recent := s.Recent()
	if len(recent) != 3 {
		t.Fatalf("Recent() returned %d entries; want 3", len(recent))
	}
	want := []string{"W2", "W3", "W4"}
	for i, w := range want {
		if recent[i].Code != w {
			t.Errorf("Recent()[%d] = %s; want %s", i, recent[i].Code, w)
		}
	}
}

func TestNoopDiscards(t *testing.T) {
	var n Noop
	// Must not panic and must satisfy the interface.
	var _ Sink = n
	n.AddWarning("X", SeverityInfo, "msg", "test")
}
