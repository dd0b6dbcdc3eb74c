package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// #region fixture-tests

// TestFixture_TripSession loads the trip_session fixture, runs it, and
// verifies every step against the expected_results block. This is the primary
// regression test — if admission, hysteresis, or dwell parameters drift, this
// catches it.
func TestFixture_TripSession(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "trip_session.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, summary, err := Run(f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := Verify(f, results); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if summary.Steps != len(f.Steps) {
		t.Fatalf("summary steps = %d, want %d", summary.Steps, len(f.Steps))
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestValidate_RejectsBadSteps(t *testing.T) {
	cases := []struct {
		name string
		step FixtureStep
	}{
		{"unknown kind", FixtureStep{Kind: "teleport"}},
		{"enter without site", FixtureStep{Kind: "enter"}},
		{"exit without site", FixtureStep{Kind: "exit"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &Fixture{Steps: []FixtureStep{tc.step}}
			if err := f.Validate(); err == nil {
				t.Fatalf("Validate accepted %+v", tc.step)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := &Fixture{
		Description: "round trip",
		Sites:       reefSites(),
		Config:      FixtureConfig{MaxRegions: 10, CompletionDwellS: 120},
		Steps: []FixtureStep{
			{Kind: "position", Lat: 20.0, Lon: -87.0},
			{Kind: "enter", SiteID: "palancar", AdvanceS: 30},
		},
		Expected: []ExpectedStep{{Step: 0, Monitored: 3}},
	}

	path := filepath.Join(t.TempDir(), "rt.json")
	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if diff := cmp.Diff(f, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// #endregion fixture-tests
