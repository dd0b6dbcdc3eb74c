// Package phase owns the user's progress through the location consent flow.
// The persisted phase is the single source of truth every other component
// consults before touching the platform location APIs; reading it never
// triggers a consent prompt.
package phase

import (
	"log"

	"github.com/driftlog/proximity/go-scheduler/internal/platform"
)

// #region phase-enum

// Phase is the consent flow state. Transitions only move forward except when
// the user acts in system settings, which surfaces as a fresh authorization
// status on the next system-status callback.
type Phase string

const (
	PhaseInitial        Phase = "initial"
	PhaseExplainerShown Phase = "explainer_shown"
	PhaseGranted        Phase = "granted"
	PhaseDenied         Phase = "denied"
)

// Valid reports whether p is a known phase value.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInitial, PhaseExplainerShown, PhaseGranted, PhaseDenied:
		return true
	}
	return false
}

// #endregion phase-enum

// #region start-outcome

// StartOutcome is the observable result of RequestStart. Permission problems
// are outcomes, not errors; nothing here throws toward the UI layer.
type StartOutcome string

const (
	OutcomeStarted          StartOutcome = "started"
	OutcomePrompted         StartOutcome = "prompted"
	OutcomeDeniedNoop       StartOutcome = "denied_noop"
	OutcomeNotUserInitiated StartOutcome = "not_user_initiated_noop"
)

// #endregion start-outcome

// #region controller

// Controller tracks the consent flow and gates whether monitoring may start.
// It is the only component allowed to trigger the platform consent prompt.
type Controller struct {
	store   *Store
	svc     platform.LocationService
	starter func() // invoked when monitoring may begin

	current Phase
}

// NewController loads the persisted phase and reconciles it with the
// platform's current authorization status. A status already determined in an
// earlier session moves the phase directly to granted/denied, bypassing the
// explainer. starter is called whenever the phase allows monitoring to begin.
func NewController(store *Store, svc platform.LocationService, starter func()) (*Controller, error) {
	persisted, err := store.Load()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		store:   store,
		svc:     svc,
		starter: starter,
		current: persisted,
	}

	// Reconcile with a status determined outside this controller (another
	// session, or the user flipping the system settings toggle).
	switch svc.AuthorizationStatus() {
	case platform.AuthAuthorized:
		if c.current != PhaseGranted {
			c.transition(PhaseGranted)
		}
	case platform.AuthDenied:
		if c.current != PhaseDenied {
			c.transition(PhaseDenied)
		}
	}

	return c, nil
}

// CurrentPhase is a pure read of the tracked phase. Safe at any time; it
// never touches the platform location API.
func (c *Controller) CurrentPhase() Phase {
	return c.current
}

// RequestStart attempts to begin monitoring.
//
//	denied                      → no-op
//	granted                     → start immediately
//	initial, !userInitiated     → no-op (never silently prompt)
//	initial/explainer, user     → show explainer, trigger consent prompt
func (c *Controller) RequestStart(userInitiated bool) StartOutcome {
	switch c.current {
	case PhaseDenied:
		log.Printf("[PHASE] requestStart ignored: phase=denied")
		return OutcomeDeniedNoop

	case PhaseGranted:
		if c.starter != nil {
			c.starter()
		}
		return OutcomeStarted

	default: // initial or explainer_shown
		if !userInitiated {
			log.Printf("[PHASE] requestStart ignored: phase=%s without user action", c.current)
			return OutcomeNotUserInitiated
		}
		if c.current == PhaseInitial {
			c.transition(PhaseExplainerShown)
		}
		c.svc.RequestAuthorization()
		return OutcomePrompted
	}
}

// OnSystemAuthorizationChanged maps the platform authorization status onto
// the phase. notDetermined leaves the phase unchanged.
func (c *Controller) OnSystemAuthorizationChanged(status platform.AuthorizationStatus) {
	switch status {
	case platform.AuthAuthorized:
		if c.current != PhaseGranted {
			c.transition(PhaseGranted)
		}
		if c.starter != nil {
			c.starter()
		}
	case platform.AuthDenied:
		if c.current != PhaseDenied {
			c.transition(PhaseDenied)
		}
	}
}

func (c *Controller) transition(to Phase) {
	log.Printf("[PHASE] %s → %s", c.current, to)
	c.current = to
	if err := c.store.Save(to); err != nil {
		// The in-memory phase stays authoritative for this process; the next
		// successful save repairs the persisted copy.
		log.Printf("[PHASE] persist failed: %v", err)
	}
}

// #endregion controller
