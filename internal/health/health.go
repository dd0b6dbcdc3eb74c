// Package health tracks scheduling-cycle quality and requests a system-wide
// safe mode when it degrades. Detection and reporting only: what "safe mode"
// means is decided by whoever consumes the escalation.
package health

import (
	"log"
	"time"
)

// #region config

// Config holds the escalation thresholds.
type Config struct {
	FailureThreshold int           // consecutive failed cycles before escalating
	SlowThreshold    int           // consecutive slow cycles before escalating
	SlowCeiling      time.Duration // a cycle over this duration counts as slow
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SlowThreshold:    3,
		SlowCeiling:      2 * time.Second,
	}
}

// #endregion config

// #region escalation

// Reason tags which counter crossed its threshold.
type Reason string

const (
	ReasonSchedulingFailures Reason = "scheduling_failures"
	ReasonSlowCycles         Reason = "slow_cycles"
)

// Escalation is the one-shot degraded signal.
type Escalation struct {
	Reason              Reason
	ConsecutiveFailures int
	ConsecutiveSlow     int
	At                  time.Time
}

// #endregion escalation

// #region monitor

// Monitor counts consecutive failures and slow cycles. Both counters reset on
// any cycle that is both successful and fast. Each counter escalates exactly
// once per crossing; it re-arms only after a reset.
//
// Written exclusively from the scheduler's serialized context; no locking.
type Monitor struct {
	config   Config
	escalate func(Escalation)
	now      func() time.Time

	consecutiveFailures int
	consecutiveSlow     int
	failureFired        bool
	slowFired           bool
}

// NewMonitor creates a monitor. escalate may be nil (detection still runs,
// visible via counters and metrics).
func NewMonitor(config Config, escalate func(Escalation)) *Monitor {
	return &Monitor{
		config:   config,
		escalate: escalate,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (m *Monitor) SetNowFunc(now func() time.Time) { m.now = now }

// RecordCycle feeds one scheduling cycle's outcome into the counters.
func (m *Monitor) RecordCycle(success bool, duration time.Duration) {
	fast := duration <= m.config.SlowCeiling

	outcome := "failure"
	if success {
		outcome = "success"
	}
	CyclesTotal.WithLabelValues(outcome).Inc()
	CycleDurationSeconds.Observe(duration.Seconds())

	if success && fast {
		m.consecutiveFailures = 0
		m.consecutiveSlow = 0
		m.failureFired = false
		m.slowFired = false
		return
	}

	if !success {
		m.consecutiveFailures++
		if m.consecutiveFailures >= m.config.FailureThreshold && !m.failureFired {
			m.failureFired = true
			m.fire(ReasonSchedulingFailures)
		}
	}
	if !fast {
		m.consecutiveSlow++
		if m.consecutiveSlow >= m.config.SlowThreshold && !m.slowFired {
			m.slowFired = true
			m.fire(ReasonSlowCycles)
		}
	}
}

// Counters returns the current consecutive failure and slow counts.
func (m *Monitor) Counters() (failures, slow int) {
	return m.consecutiveFailures, m.consecutiveSlow
}

func (m *Monitor) fire(reason Reason) {
	log.Printf("[HEALTH] degraded: reason=%s failures=%d slow=%d",
		reason, m.consecutiveFailures, m.consecutiveSlow)
	EscalationsTotal.WithLabelValues(string(reason)).Inc()
	if m.escalate != nil {
		m.escalate(Escalation{
			Reason:              reason,
			ConsecutiveFailures: m.consecutiveFailures,
			ConsecutiveSlow:     m.consecutiveSlow,
			At:                  m.now(),
		})
	}
}

// #endregion monitor
