package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a recorded scenario: an initial
// site catalog, a sequence of position fixes and region callbacks, and the
// expected per-step outcomes.
type Fixture struct {
	Description string         `json:"description"`
	Sites       []FixtureSite  `json:"sites"`
	Config      FixtureConfig  `json:"config"`
	Steps       []FixtureStep  `json:"steps"`
	Expected    []ExpectedStep `json:"expected_results,omitempty"`
}

// FixtureSite mirrors geo.CandidateSite with JSON tags.
type FixtureSite struct {
	ID   string  `json:"id"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Site converts to the domain value type.
func (s FixtureSite) Site() geo.CandidateSite {
	return geo.CandidateSite{
		ID:     s.ID,
		Name:   s.Name,
		Center: geo.Coordinate{Lat: s.Lat, Lon: s.Lon},
	}
}

// FixtureConfig bundles scheduler and proximity tuning for a run. Zero values
// fall back to production defaults, except the recompute throttle, which the
// harness always disables: replayed steps are instantaneous.
type FixtureConfig struct {
	MaxRegions       int     `json:"max_regions,omitempty"`
	RegionRadiusM    float64 `json:"region_radius_m,omitempty"`
	AdmitRadiusKm    float64 `json:"admit_radius_km,omitempty"`
	EvictRadiusKm    float64 `json:"evict_radius_km,omitempty"`
	CompletionDwellS int     `json:"completion_dwell_s,omitempty"`
}

// FixtureStep is one recorded input.
//
// Kind "position" is a device fix and drives one scheduling cycle. Kinds
// "enter" and "exit" are platform region callbacks for SiteID. AdvanceS moves
// the scenario clock forward before the step applies; AddSites/RemoveSiteIDs
// mutate the catalog first, modelling sites appearing in or vanishing from
// the source between cycles.
type FixtureStep struct {
	Kind          string        `json:"kind"`
	Lat           float64       `json:"lat,omitempty"`
	Lon           float64       `json:"lon,omitempty"`
	SiteID        string        `json:"site_id,omitempty"`
	AdvanceS      int           `json:"advance_s,omitempty"`
	AddSites      []FixtureSite `json:"add_sites,omitempty"`
	RemoveSiteIDs []string      `json:"remove_site_ids,omitempty"`
}

// ExpectedStep captures the expected outcome of the step at the same index.
// Events use the "kind:siteID" form, e.g. "arrived:palancar".
type ExpectedStep struct {
	Step      int      `json:"step"`
	Monitored int      `json:"monitored"`
	Admitted  []string `json:"admitted,omitempty"`
	Evicted   []string `json:"evicted,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// #endregion fixture-types

// #region load-save

// LoadFixture reads and validates a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// SaveFixture writes a fixture as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// Validate checks step kinds and required fields.
func (f *Fixture) Validate() error {
	for i, step := range f.Steps {
		switch step.Kind {
		case "position":
		case "enter", "exit":
			if step.SiteID == "" {
				return fmt.Errorf("step %d: kind %q requires site_id", i, step.Kind)
			}
		default:
			return fmt.Errorf("step %d: unknown kind %q", i, step.Kind)
		}
	}
	return nil
}

// #endregion load-save
