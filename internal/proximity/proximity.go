// Package proximity tracks whether the user is currently at a dive site and
// synthesizes arrival/departure/completion events from raw region signals.
// All transitions are event-driven; nothing in here runs on a timer.
package proximity

import (
	"log"
	"time"
)

// #region events

// EventKind classifies a synthesized proximity event.
type EventKind string

const (
	// EventArrived fires on entering a site's region.
	EventArrived EventKind = "arrived"
	// EventDeparted fires on an exit with dwell below the completion threshold:
	// a brief excursion (boat repositioning), not a dive.
	EventDeparted EventKind = "departed"
	// EventCompleted fires instead of EventDeparted when dwell reached the
	// threshold: a probable dive worth prompting about immediately.
	EventCompleted EventKind = "completed"
)

// Event is a synthesized proximity event for one site.
type Event struct {
	Kind      EventKind
	SiteID    string
	EnteredAt time.Time
	ExitedAt  time.Time     // zero for EventArrived
	Dwell     time.Duration // zero for EventArrived
}

// #endregion events

// #region config

// Config holds the dwell threshold that promotes an exit into a completion.
type Config struct {
	CompletionDwell time.Duration
}

// DefaultConfig returns the standard 30-minute completion threshold.
func DefaultConfig() Config {
	return Config{CompletionDwell: 30 * time.Minute}
}

// #endregion config

// #region machine

// Machine is the away/atSite state machine. It exclusively owns the single
// logical proximity session and must only be driven from the scheduler's
// serialized context.
type Machine struct {
	config Config
	sink   func(Event)
	now    func() time.Time

	// current session; siteID == "" means away
	siteID    string
	enteredAt time.Time
}

// NewMachine creates a machine delivering events to sink (may be nil).
func NewMachine(config Config, sink func(Event)) *Machine {
	return &Machine{
		config: config,
		sink:   sink,
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (m *Machine) SetNowFunc(now func() time.Time) { m.now = now }

// AtSite returns the current session's site ID and entry time;
// ok is false when away.
func (m *Machine) AtSite() (siteID string, enteredAt time.Time, ok bool) {
	if m.siteID == "" {
		return "", time.Time{}, false
	}
	return m.siteID, m.enteredAt, true
}

// HandleEnter processes a region-entry signal for the given site. Entering a
// second site while a session is open is processed as exit-then-enter so the
// dwell check still runs for the first site.
func (m *Machine) HandleEnter(siteID string) {
	if m.siteID == siteID {
		return // duplicate enter for the current site
	}
	if m.siteID != "" {
		m.HandleExit(m.siteID)
	}

	m.siteID = siteID
	m.enteredAt = m.now()
	log.Printf("[PROX] arrived: site=%s", siteID)
	m.emit(Event{
		Kind:      EventArrived,
		SiteID:    siteID,
		EnteredAt: m.enteredAt,
	})
}

// HandleExit processes a region-exit signal. Exits for a site other than the
// current session's are ignored (a stale callback after an implicit exit).
func (m *Machine) HandleExit(siteID string) {
	if m.siteID == "" || m.siteID != siteID {
		return
	}

	exitedAt := m.now()
	dwell := exitedAt.Sub(m.enteredAt)
	ev := Event{
		Kind:      EventDeparted,
		SiteID:    siteID,
		EnteredAt: m.enteredAt,
		ExitedAt:  exitedAt,
		Dwell:     dwell,
	}
	if dwell >= m.config.CompletionDwell {
		ev.Kind = EventCompleted
	}

	m.siteID = ""
	m.enteredAt = time.Time{}

	log.Printf("[PROX] %s: site=%s dwell=%s", ev.Kind, siteID, dwell.Round(time.Second))
	m.emit(ev)
}

func (m *Machine) emit(ev Event) {
	if m.sink != nil {
		m.sink(ev)
	}
}

// #endregion machine
