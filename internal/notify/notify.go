// Package notify bridges proximity events to the local-reminder dispatcher.
// The dispatcher itself is an external collaborator; this package only
// carries scheduling intent.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/driftlog/proximity/go-scheduler/internal/proximity"
)

// #region dispatcher

// Dispatcher schedules and cancels local reminders keyed by site ID.
// Scheduling is idempotent per site: a new schedule replaces any pending one.
type Dispatcher interface {
	ScheduleDelayed(siteID string, delay time.Duration) error
	ScheduleImmediate(siteID string) error
	Cancel(siteID string) error
}

// #endregion dispatcher

// #region bridge

// Bridge translates proximity events into dispatcher calls:
//
//	arrived   → delayed "log your dive?" reminder
//	departed  → cancel the pending reminder (dive too short to prompt for)
//	completed → immediate prompt, replacing any pending reminder
type Bridge struct {
	dispatcher Dispatcher
	delay      time.Duration
}

// DefaultReminderDelay is how long after arrival the reminder fires.
const DefaultReminderDelay = 15 * time.Minute

// NewBridge creates a bridge with the given reminder delay
// (DefaultReminderDelay if zero).
func NewBridge(dispatcher Dispatcher, delay time.Duration) *Bridge {
	if delay <= 0 {
		delay = DefaultReminderDelay
	}
	return &Bridge{dispatcher: dispatcher, delay: delay}
}

// HandleEvent consumes one proximity event. Dispatcher errors are logged and
// swallowed: reminder delivery is best-effort and never degrades scheduling.
func (b *Bridge) HandleEvent(ev proximity.Event) {
	var err error
	switch ev.Kind {
	case proximity.EventArrived:
		err = b.dispatcher.ScheduleDelayed(ev.SiteID, b.delay)
	case proximity.EventDeparted:
		err = b.dispatcher.Cancel(ev.SiteID)
	case proximity.EventCompleted:
		err = b.dispatcher.ScheduleImmediate(ev.SiteID)
	}
	if err != nil {
		log.Printf("[NOTIFY] dispatch %s for site %s failed: %v", ev.Kind, ev.SiteID, err)
	}
}

// #endregion bridge

// #region recorder

// Call records one dispatcher invocation.
type Call struct {
	Op     string // "delayed" | "immediate" | "cancel"
	SiteID string
	Delay  time.Duration
}

// Recorder is an in-memory Dispatcher for tests, honoring the
// replace-on-reschedule contract.
type Recorder struct {
	mu      sync.Mutex
	Calls   []Call
	pending map[string]bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{pending: make(map[string]bool)}
}

func (r *Recorder) ScheduleDelayed(siteID string, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Op: "delayed", SiteID: siteID, Delay: delay})
	r.pending[siteID] = true
	return nil
}

func (r *Recorder) ScheduleImmediate(siteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Op: "immediate", SiteID: siteID})
	r.pending[siteID] = true
	return nil
}

func (r *Recorder) Cancel(siteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Op: "cancel", SiteID: siteID})
	delete(r.pending, siteID)
	return nil
}

// Pending reports whether a reminder is pending for siteID.
func (r *Recorder) Pending(siteID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[siteID]
}

// #endregion recorder
