package health

import (
	"testing"
	"time"
)

const fast = 100 * time.Millisecond
const slow = 3 * time.Second

func collect(m *Monitor) *[]Escalation {
	events := &[]Escalation{}
	m.escalate = func(e Escalation) { *events = append(*events, e) }
	return events
}

func newTestMonitor() (*Monitor, *[]Escalation) {
	m := NewMonitor(DefaultConfig(), nil)
	return m, collect(m)
}

func TestThreeFailuresEscalateOnce(t *testing.T) {
	m, events := newTestMonitor()

	m.RecordCycle(false, fast)
	m.RecordCycle(false, fast)
	if len(*events) != 0 {
		t.Fatalf("escalated too early: %d events", len(*events))
	}
	m.RecordCycle(false, fast)

	if len(*events) != 1 {
		t.Fatalf("expected exactly one escalation, got %d", len(*events))
	}
	if (*events)[0].Reason != ReasonSchedulingFailures {
		t.Fatalf("expected scheduling_failures, got %s", (*events)[0].Reason)
	}
}

func TestFourthFailureDoesNotReEscalate(t *testing.T) {
	m, events := newTestMonitor()

	for i := 0; i < 4; i++ {
		m.RecordCycle(false, fast)
	}

	if len(*events) != 1 {
		t.Fatalf("expected one escalation across four failures, got %d", len(*events))
	}
	if failures, _ := m.Counters(); failures != 4 {
		t.Fatalf("counter must keep accumulating, got %d", failures)
	}
}

func TestResetReArmsEscalation(t *testing.T) {
	m, events := newTestMonitor()

	for i := 0; i < 3; i++ {
		m.RecordCycle(false, fast)
	}
	m.RecordCycle(true, fast) // reset
	for i := 0; i < 3; i++ {
		m.RecordCycle(false, fast)
	}

	if len(*events) != 2 {
		t.Fatalf("expected a second escalation after reset, got %d", len(*events))
	}
}

func TestSlowCyclesEscalateIndependently(t *testing.T) {
	m, events := newTestMonitor()

	// Successful but slow: the failure counter must not move.
	m.RecordCycle(true, slow)
	m.RecordCycle(true, slow)
	m.RecordCycle(true, slow)

	if len(*events) != 1 {
		t.Fatalf("expected one escalation, got %d", len(*events))
	}
	if (*events)[0].Reason != ReasonSlowCycles {
		t.Fatalf("expected slow_cycles, got %s", (*events)[0].Reason)
	}
	if failures, slowCount := m.Counters(); failures != 0 || slowCount != 3 {
		t.Fatalf("expected failures=0 slow=3, got %d/%d", failures, slowCount)
	}
}

func TestSuccessfulSlowCycleDoesNotResetCounters(t *testing.T) {
	m, _ := newTestMonitor()

	m.RecordCycle(false, fast)
	m.RecordCycle(false, fast)
	m.RecordCycle(true, slow) // successful but slow: no reset

	if failures, _ := m.Counters(); failures != 2 {
		t.Fatalf("expected failure count preserved, got %d", failures)
	}
}

func TestFailingSlowCycleFeedsBothCounters(t *testing.T) {
	m, events := newTestMonitor()

	for i := 0; i < 3; i++ {
		m.RecordCycle(false, slow)
	}

	if len(*events) != 2 {
		t.Fatalf("expected both counters to escalate, got %d events", len(*events))
	}
	seen := map[Reason]bool{}
	for _, e := range *events {
		seen[e.Reason] = true
	}
	if !seen[ReasonSchedulingFailures] || !seen[ReasonSlowCycles] {
		t.Fatalf("expected both reasons, got %v", seen)
	}
}

func TestEscalationCarriesTimestamp(t *testing.T) {
	m, events := newTestMonitor()
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.SetNowFunc(func() time.Time { return fixed })

	for i := 0; i < 3; i++ {
		m.RecordCycle(false, fast)
	}

	if len(*events) != 1 || !(*events)[0].At.Equal(fixed) {
		t.Fatalf("expected escalation at %v, got %+v", fixed, *events)
	}
}
