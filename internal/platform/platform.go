// Package platform defines the thin adapter boundary in front of the OS
// location and region-monitoring facilities. All scheduler logic talks to
// these interfaces; callbacks may arrive on arbitrary platform threads and
// are funneled into the scheduler's own serialized context by the callers.
package platform

import (
	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/power"
)

// #region authorization

// AuthorizationStatus mirrors the platform's location authorization state.
type AuthorizationStatus string

const (
	AuthNotDetermined AuthorizationStatus = "not_determined"
	AuthAuthorized    AuthorizationStatus = "authorized"
	AuthDenied        AuthorizationStatus = "denied"
)

// #endregion authorization

// #region location-service

// LocationCallbacks receive raw platform location events.
type LocationCallbacks struct {
	OnPosition             func(geo.Position)
	OnError                func(error)
	OnAuthorizationChanged func(AuthorizationStatus)
}

// LocationService abstracts the platform positioning facility.
type LocationService interface {
	// AuthorizationStatus is a pure read; implementations must not trigger
	// any consent prompt from it.
	AuthorizationStatus() AuthorizationStatus

	// RequestAuthorization triggers the platform consent prompt. The outcome
	// arrives via LocationCallbacks.OnAuthorizationChanged.
	RequestAuthorization()

	// SetCallbacks registers the receiver for location events. Must be called
	// before StartUpdates.
	SetCallbacks(cb LocationCallbacks)

	// StartUpdates begins continuous positioning with the given profile.
	// Calling it again re-tunes the active profile.
	StartUpdates(profile power.SamplingProfile) error

	// StartSignificantChange switches to the coarse low-power sampling mode.
	StartSignificantChange() error

	// StopUpdates cancels all positioning. Idempotent.
	StopUpdates()
}

// #endregion location-service

// #region region-monitor

// Region is an OS-level circular trigger.
type Region struct {
	ID            string
	Center        geo.Coordinate
	RadiusM       float64
	NotifyOnEntry bool
	NotifyOnExit  bool
}

// RegionCallbacks receive region trigger events. The region identifier is the
// platform's namespace-wide value; it may belong to another subsystem.
type RegionCallbacks struct {
	OnEnter            func(regionID string)
	OnExit             func(regionID string)
	OnMonitoringFailed func(regionID string, err error)
}

// RegionMonitor abstracts the platform geofencing facility. The scheduler is
// its sole owner; no other component may install or remove regions.
type RegionMonitor interface {
	SetCallbacks(cb RegionCallbacks)
	Install(r Region) error
	Remove(regionID string) error
}

// #endregion region-monitor
