package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/health"
	"github.com/driftlog/proximity/go-scheduler/internal/platform"
	"github.com/driftlog/proximity/go-scheduler/internal/proximity"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
)

// #region helpers

type harness struct {
	sched   *Scheduler
	source  *sitesource.Static
	mock    *platform.Mock
	cycles  chan CycleResult
	proxEvs chan proximity.Event
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	h := &harness{
		source:  &sitesource.Static{},
		mock:    platform.NewMock(platform.AuthAuthorized),
		cycles:  make(chan CycleResult, 32),
		proxEvs: make(chan proximity.Event, 32),
	}
	prox := proximity.NewMachine(proximity.DefaultConfig(), func(e proximity.Event) { h.proxEvs <- e })
	hm := health.NewMonitor(health.DefaultConfig(), nil)
	h.sched = New(config, h.source, h.mock.RegionFacet(), hm, prox, nil)
	h.sched.SetCycleHook(func(r CycleResult) { h.cycles <- r })
	t.Cleanup(h.sched.Stop)
	return h
}

func fastConfig() Config {
	c := DefaultConfig()
	c.MinCycleInterval = 0
	return c
}

func (h *harness) waitCycle(t *testing.T) CycleResult {
	t.Helper()
	select {
	case r := <-h.cycles:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduling cycle")
		return CycleResult{}
	}
}

func (h *harness) expectNoCycle(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case r := <-h.cycles:
		t.Fatalf("unexpected cycle: %+v", r)
	case <-time.After(within):
	}
}

func position(lat, lon float64) geo.Position {
	return geo.Position{
		Coordinate: geo.Coordinate{Lat: lat, Lon: lon},
		AccuracyM:  10,
		Timestamp:  time.Now(),
	}
}

// sitesNorthOf returns n sites spaced ~1.1 km apart heading north from base.
func sitesNorthOf(base geo.Coordinate, n int) []geo.CandidateSite {
	sites := make([]geo.CandidateSite, n)
	for i := range sites {
		sites[i] = geo.CandidateSite{
			ID:     fmt.Sprintf("site-%02d", i),
			Center: geo.Coordinate{Lat: base.Lat + float64(i+1)*0.01, Lon: base.Lon},
		}
	}
	return sites
}

// #endregion helpers

// #region capacity

func TestCapacityNeverExceedsTwenty(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 25)

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	r := h.waitCycle(t)

	if !r.Success {
		t.Fatalf("expected successful cycle: %+v", r)
	}
	if r.Monitored != 20 {
		t.Fatalf("expected 20 monitored, got %d", r.Monitored)
	}
	if h.mock.InstalledCount() != 20 {
		t.Fatalf("expected 20 installed with platform, got %d", h.mock.InstalledCount())
	}
}

func TestAdmissionIsClosestFirst(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 25)

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	h.waitCycle(t)

	ids := h.mock.InstalledIDs()
	if len(ids) != 20 {
		t.Fatalf("expected 20 installs, got %d", len(ids))
	}
	if ids[0] != "dlsite:site-00" || ids[19] != "dlsite:site-19" {
		t.Fatalf("expected closest-first install order, got first=%s last=%s", ids[0], ids[19])
	}
	// The five farthest candidates never made the cut.
	if h.mock.Installed("dlsite:site-20") {
		t.Fatal("site beyond capacity must not be installed")
	}
}

// #endregion capacity

// #region hysteresis

func TestHysteresisBandKeepsMidDistanceRegions(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	// One site right next to the origin.
	h.source.Sites = []geo.CandidateSite{
		{ID: "home-reef", Center: geo.Coordinate{Lat: 20.01, Lon: -87}},
	}

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	h.waitCycle(t)
	if h.sched.MonitoredCount() != 1 {
		t.Fatalf("expected 1 monitored, got %d", h.sched.MonitoredCount())
	}

	// Move ~60 km north: outside the 50 km admit radius, inside the 100 km
	// eviction radius. The region must survive.
	h.sched.UpdatePosition(position(origin.Lat+0.54, origin.Lon))
	r := h.waitCycle(t)
	if len(r.Evicted) != 0 {
		t.Fatalf("60 km site must not be evicted, got %v", r.Evicted)
	}
	if !h.mock.Installed("dlsite:home-reef") {
		t.Fatal("region at 60 km must remain installed")
	}

	// Move ~110 km north: beyond the eviction radius. Now it goes.
	h.sched.UpdatePosition(position(origin.Lat+0.99, origin.Lon))
	r = h.waitCycle(t)
	if len(r.Evicted) != 1 || r.Evicted[0] != "home-reef" {
		t.Fatalf("expected home-reef evicted at 110 km, got %v", r.Evicted)
	}
	if h.mock.Installed("dlsite:home-reef") {
		t.Fatal("evicted region must be removed from the platform")
	}
}

// #endregion hysteresis

// #region end-to-end

func TestEndToEndAdmitThenPartialEvict(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}

	// P0: nothing nearby.
	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	r := h.waitCycle(t)
	if r.Monitored != 0 {
		t.Fatalf("expected no regions after P0, got %d", r.Monitored)
	}

	// P1: 25 candidates within 50 km → exactly 20 admitted.
	h.source.Sites = sitesNorthOf(origin, 25)
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	r = h.waitCycle(t)
	if r.Monitored != 20 || len(r.Admitted) != 20 {
		t.Fatalf("expected 20 admitted after P1, got monitored=%d admitted=%d", r.Monitored, len(r.Admitted))
	}

	// P2: move ~120 km east. All previously monitored sites are now far away;
	// a fresh cluster of 5 sits within 50 km of P2.
	p2 := geo.Coordinate{Lat: 20, Lon: -85.85}
	h.source.Sites = sitesNorthOf(p2, 5)
	h.sched.UpdatePosition(position(p2.Lat, p2.Lon))
	r = h.waitCycle(t)

	if len(r.Evicted) != 20 {
		t.Fatalf("expected all 20 stale regions evicted, got %d", len(r.Evicted))
	}
	if len(r.Admitted) != 5 {
		t.Fatalf("expected 5 replacements admitted, got %d", len(r.Admitted))
	}
	if r.Monitored != 5 || h.mock.InstalledCount() != 5 {
		t.Fatalf("expected 5 live regions, got %d (platform %d)", r.Monitored, h.mock.InstalledCount())
	}
}

// #endregion end-to-end

// #region failures

func TestInstallFailureDoesNotAbortDiff(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 5)
	h.mock.InstallErr = errors.New("resource exhausted")
	h.mock.FailIDs = map[string]bool{"dlsite:site-02": true}

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	r := h.waitCycle(t)

	if r.Success {
		t.Fatal("cycle with a failed install must count as a failure")
	}
	if len(r.Admitted) != 4 {
		t.Fatalf("remaining installs must proceed, got %d admitted", len(r.Admitted))
	}
	if h.mock.Installed("dlsite:site-02") {
		t.Fatal("failed region must not be tracked as installed")
	}
}

func TestQueryFailureCountsAsCycleFailureAndRetriesOnNextUpdate(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Err = errors.New("database locked")

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	r := h.waitCycle(t)
	if r.Success {
		t.Fatal("query failure must fail the cycle")
	}

	// The next position update is the retry.
	h.source.Err = nil
	h.source.Sites = sitesNorthOf(origin, 3)
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	r = h.waitCycle(t)
	if !r.Success || r.Monitored != 3 {
		t.Fatalf("expected recovery on next update, got %+v", r)
	}
}

// #endregion failures

// #region lifecycle

func TestStopRemovesAllRegionsSynchronously(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 8)

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	h.waitCycle(t)

	h.sched.Stop()

	if h.mock.InstalledCount() != 0 {
		t.Fatalf("expected all regions removed on stop, %d remain", h.mock.InstalledCount())
	}
	if h.sched.MonitoredCount() != 0 {
		t.Fatalf("expected empty live set, got %d", h.sched.MonitoredCount())
	}
}

func TestStopWhenNeverStartedIsNoop(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.sched.Stop() // must not panic or block
}

func TestDoubleStartMatchesSingleStart(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 4)

	h.sched.Start()
	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	h.waitCycle(t)
	h.expectNoCycle(t, 200*time.Millisecond)

	if h.sched.MonitoredCount() != 4 {
		t.Fatalf("expected 4 monitored after double start, got %d", h.sched.MonitoredCount())
	}
}

// #endregion lifecycle

// #region throttle-coalesce

func TestRecomputeThrottled(t *testing.T) {
	config := fastConfig()
	config.MinCycleInterval = 200 * time.Millisecond
	h := newHarness(t, config)
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 2)

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	h.waitCycle(t)

	began := time.Now()
	h.sched.UpdatePosition(position(origin.Lat+0.01, origin.Lon))
	h.waitCycle(t)

	if elapsed := time.Since(began); elapsed < 150*time.Millisecond {
		t.Fatalf("second cycle ran after %s, before the throttle window", elapsed)
	}
}

func TestManualRecomputeUsesLastPosition(t *testing.T) {
	h := newHarness(t, fastConfig())
	origin := geo.Coordinate{Lat: 20, Lon: -87}

	// Nothing to recompute against before the first fix.
	h.sched.Start()
	h.sched.Recompute()
	h.expectNoCycle(t, 200*time.Millisecond)

	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	if r := h.waitCycle(t); r.Monitored != 0 {
		t.Fatalf("expected empty set before catalog load, got %d", r.Monitored)
	}

	// The catalog changes while the device sits still; a manual trigger picks
	// it up at the last known position.
	h.source.Sites = sitesNorthOf(origin, 3)
	h.sched.Recompute()
	r := h.waitCycle(t)
	if r.Trigger != "manual" {
		t.Fatalf("expected manual trigger, got %q", r.Trigger)
	}
	if r.Monitored != 3 {
		t.Fatalf("expected 3 monitored after manual recompute, got %d", r.Monitored)
	}
}

func TestCycleIntervalRetuneReleasesThrottledRecompute(t *testing.T) {
	config := fastConfig()
	config.MinCycleInterval = time.Hour
	h := newHarness(t, config)
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	h.source.Sites = sitesNorthOf(origin, 2)

	h.sched.Start()
	h.sched.UpdatePosition(position(origin.Lat, origin.Lon))
	h.waitCycle(t)

	// Stuck behind the hour-long throttle.
	h.sched.UpdatePosition(position(origin.Lat+0.01, origin.Lon))
	h.expectNoCycle(t, 200*time.Millisecond)

	// A policy-driven retune shortens the interval; the pending recompute
	// re-evaluates and runs.
	h.sched.SetCycleInterval(0)
	if r := h.waitCycle(t); !r.Success {
		t.Fatalf("expected the pending recompute to run, got %+v", r)
	}
}

type slowSource struct {
	inner *sitesource.Static
	delay time.Duration
	began chan struct{}
}

func (s *slowSource) Nearby(ctx context.Context, pos geo.Coordinate, radiusKm float64, limit int) ([]geo.CandidateSite, error) {
	select {
	case s.began <- struct{}{}:
	default:
	}
	time.Sleep(s.delay)
	return s.inner.Nearby(ctx, pos, radiusKm, limit)
}

func TestBurstDuringSlowQueryCoalescesToOneFollowUp(t *testing.T) {
	origin := geo.Coordinate{Lat: 20, Lon: -87}
	slow := &slowSource{
		inner: &sitesource.Static{Sites: sitesNorthOf(origin, 2)},
		delay: 150 * time.Millisecond,
		began: make(chan struct{}, 1),
	}

	mock := platform.NewMock(platform.AuthAuthorized)
	prox := proximity.NewMachine(proximity.DefaultConfig(), nil)
	hm := health.NewMonitor(health.DefaultConfig(), nil)
	sched := New(fastConfig(), slow, mock.RegionFacet(), hm, prox, nil)
	cycles := make(chan CycleResult, 32)
	sched.SetCycleHook(func(r CycleResult) { cycles <- r })
	t.Cleanup(sched.Stop)

	sched.Start()
	sched.UpdatePosition(position(origin.Lat, origin.Lon))
	<-slow.began

	// Five updates land while the first query is still running.
	for i := 0; i < 5; i++ {
		sched.UpdatePosition(position(origin.Lat+float64(i)*0.001, origin.Lon))
	}

	total := 0
	deadline := time.After(1500 * time.Millisecond)
	for done := false; !done; {
		select {
		case <-cycles:
			total++
		case <-deadline:
			done = true
		}
	}
	if total != 2 {
		t.Fatalf("expected the burst to coalesce into 2 cycles, got %d", total)
	}
}

// #endregion throttle-coalesce

// #region region-event-routing

func TestEnterExitRoutedToProximity(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.sched.Start()

	h.mock.EmitEnter("dlsite:palancar")

	select {
	case ev := <-h.proxEvs:
		if ev.Kind != proximity.EventArrived || ev.SiteID != "palancar" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enter callback never reached the proximity machine")
	}
}

func TestForeignRegionIDsIgnored(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.sched.Start()

	h.mock.EmitEnter("othersubsystem:zone-9")
	h.mock.EmitEnter("dlsite:") // empty site ID is also malformed

	select {
	case ev := <-h.proxEvs:
		t.Fatalf("malformed region ID must be ignored, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

// #endregion region-event-routing
