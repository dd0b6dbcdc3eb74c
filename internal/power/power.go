package power

import "time"

// #region policy

// Policy is the externally supplied performance policy. The scheduler core
// consults it but never produces it; device thermal/battery signals own it.
type Policy string

const (
	PolicyStandard         Policy = "standard"
	PolicyBoatMode         Policy = "boat_mode"
	PolicyThermalThrottled Policy = "thermal_throttled"
	PolicyCritical         Policy = "critical"
)

// Valid reports whether p is a known policy value.
func (p Policy) Valid() bool {
	switch p {
	case PolicyStandard, PolicyBoatMode, PolicyThermalThrottled, PolicyCritical:
		return true
	}
	return false
}

// Degraded reports whether the policy calls for reduced sampling aggressiveness.
func (p Policy) Degraded() bool {
	return p != PolicyStandard
}

// #endregion policy

// #region sampling-profile

// SamplingProfile is the concrete tuning a policy maps to: how precise fixes
// need to be and how far the device must move before a new update is reported.
type SamplingProfile struct {
	AccuracyM       float64       // desired fix accuracy in meters
	MinDistanceM    float64       // distance filter between reported updates
	RefreshInterval time.Duration // region recompute cadence hint
}

// #endregion sampling-profile

// #region profile-table

// Profiles maps each policy to its sampling profile. Standard is the tightest;
// the degraded policies trade precision for battery in increasing severity.
var Profiles = map[Policy]SamplingProfile{
	PolicyStandard: {
		AccuracyM:       10,
		MinDistanceM:    50,
		RefreshInterval: 60 * time.Second,
	},
	PolicyBoatMode: {
		AccuracyM:       100,
		MinDistanceM:    250,
		RefreshInterval: 2 * time.Minute,
	},
	PolicyThermalThrottled: {
		AccuracyM:       500,
		MinDistanceM:    500,
		RefreshInterval: 5 * time.Minute,
	},
	PolicyCritical: {
		AccuracyM:       1000,
		MinDistanceM:    1000,
		RefreshInterval: 10 * time.Minute,
	},
}

// ProfileFor returns the sampling profile for p, falling back to the standard
// profile for unknown values so a stale persisted policy cannot stall sampling.
func ProfileFor(p Policy) SamplingProfile {
	if prof, ok := Profiles[p]; ok {
		return prof
	}
	return Profiles[PolicyStandard]
}

// #endregion profile-table
