package scheduler

import "time"

// #region constants

// PlatformRegionCeiling is the platform-imposed maximum number of
// simultaneously monitored regions. Config may lower the cap, never raise it.
const PlatformRegionCeiling = 20

// #endregion constants

// #region config

// Config holds the admission/eviction tuning.
type Config struct {
	MaxRegions       int           // live-region cap, clamped to PlatformRegionCeiling
	RegionRadiusM    float64       // geofence circle radius
	AdmitRadiusKm    float64       // candidate query radius
	EvictRadiusKm    float64       // eviction distance; wider than admit to stop churn
	MinCycleInterval time.Duration // recompute throttle
	RegionPrefix     string        // namespace prefix on platform region IDs
}

// DefaultConfig returns the production tuning. The 50 km admit / 100 km evict
// band is deliberate hysteresis: a site orbiting the admit boundary as the
// boat moves must not flap in and out of the monitored set.
func DefaultConfig() Config {
	return Config{
		MaxRegions:       PlatformRegionCeiling,
		RegionRadiusM:    500,
		AdmitRadiusKm:    50,
		EvictRadiusKm:    100,
		MinCycleInterval: 60 * time.Second,
		RegionPrefix:     "dlsite:",
	}
}

// maxRegions returns the effective cap.
func (c Config) maxRegions() int {
	if c.MaxRegions <= 0 || c.MaxRegions > PlatformRegionCeiling {
		return PlatformRegionCeiling
	}
	return c.MaxRegions
}

// #endregion config
