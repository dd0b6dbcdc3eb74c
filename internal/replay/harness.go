// Package replay runs recorded position/region scenarios through a real
// scheduler and proximity machine, entirely in memory and on a fake clock.
// Fixtures double as regression tests and as a debugging tool for field
// reports: export a journal slice, replay it, inspect the per-step diffs.
package replay

import (
	"fmt"
	"sync"
	"time"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/health"
	"github.com/driftlog/proximity/go-scheduler/internal/platform"
	"github.com/driftlog/proximity/go-scheduler/internal/proximity"
	"github.com/driftlog/proximity/go-scheduler/internal/scheduler"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
)

// #region results

// StepResult captures the observable outcome of one fixture step.
type StepResult struct {
	Step      int
	Kind      string
	Monitored int      // live region count after the step
	Admitted  []string // position steps only
	Evicted   []string // position steps only
	Events    []string // proximity events in "kind:siteID" form
}

// Summary aggregates a whole run.
type Summary struct {
	Steps          int
	Cycles         int
	FailedCycles   int
	Arrivals       int
	Departures     int
	Completions    int
	FinalMonitored []string
}

// #endregion results

// #region clock

// fakeClock is the scenario clock. Steps advance it explicitly; nothing in a
// replay run waits on real time except the cycle-completion handshake.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// #endregion clock

// #region run

const cycleTimeout = 5 * time.Second

// Run replays a fixture through a live scheduler and proximity machine and
// returns one StepResult per step. The scheduler's recompute throttle is
// disabled so every position step produces exactly one cycle.
func Run(f *Fixture) ([]StepResult, Summary, error) {
	if err := f.Validate(); err != nil {
		return nil, Summary{}, err
	}

	cfg := scheduler.DefaultConfig()
	cfg.MinCycleInterval = 0
	if f.Config.MaxRegions > 0 {
		cfg.MaxRegions = f.Config.MaxRegions
	}
	if f.Config.RegionRadiusM > 0 {
		cfg.RegionRadiusM = f.Config.RegionRadiusM
	}
	if f.Config.AdmitRadiusKm > 0 {
		cfg.AdmitRadiusKm = f.Config.AdmitRadiusKm
	}
	if f.Config.EvictRadiusKm > 0 {
		cfg.EvictRadiusKm = f.Config.EvictRadiusKm
	}

	proxCfg := proximity.DefaultConfig()
	if f.Config.CompletionDwellS > 0 {
		proxCfg.CompletionDwell = time.Duration(f.Config.CompletionDwellS) * time.Second
	}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}

	var evMu sync.Mutex
	var pendingEvents []string
	machine := proximity.NewMachine(proxCfg, func(ev proximity.Event) {
		evMu.Lock()
		pendingEvents = append(pendingEvents, fmt.Sprintf("%s:%s", ev.Kind, ev.SiteID))
		evMu.Unlock()
	})
	machine.SetNowFunc(clock.Now)

	source := &sitesource.Static{}
	for _, s := range f.Sites {
		source.Sites = append(source.Sites, s.Site())
	}

	mock := platform.NewMock(platform.AuthAuthorized)
	hm := health.NewMonitor(health.DefaultConfig(), nil)
	hm.SetNowFunc(clock.Now)

	cycles := make(chan scheduler.CycleResult, 16)
	sched := scheduler.New(cfg, source, mock.RegionFacet(), hm, machine, nil)
	sched.SetCycleHook(func(r scheduler.CycleResult) { cycles <- r })
	sched.Start()
	defer sched.Stop()

	var summary Summary
	results := make([]StepResult, 0, len(f.Steps))

	for i, step := range f.Steps {
		if step.AdvanceS > 0 {
			clock.Advance(time.Duration(step.AdvanceS) * time.Second)
		}
		// Catalog edits are safe here: the previous step's cycle has fully
		// completed, so no Nearby query is in flight.
		applyCatalogEdits(source, step)

		res := StepResult{Step: i, Kind: step.Kind}

		switch step.Kind {
		case "position":
			sched.UpdatePosition(geo.Position{
				Coordinate: geo.Coordinate{Lat: step.Lat, Lon: step.Lon},
				Timestamp:  clock.Now(),
			})
			select {
			case cr := <-cycles:
				summary.Cycles++
				if !cr.Success {
					summary.FailedCycles++
				}
				res.Monitored = cr.Monitored
				res.Admitted = cr.Admitted
				res.Evicted = cr.Evicted
			case <-time.After(cycleTimeout):
				return nil, Summary{}, fmt.Errorf("step %d: scheduling cycle timed out", i)
			}
		case "enter":
			mock.EmitEnter(scheduler.RegionID(cfg.RegionPrefix, step.SiteID))
			sched.Flush()
			res.Monitored = sched.MonitoredCount()
		case "exit":
			mock.EmitExit(scheduler.RegionID(cfg.RegionPrefix, step.SiteID))
			sched.Flush()
			res.Monitored = sched.MonitoredCount()
		}

		evMu.Lock()
		res.Events = pendingEvents
		pendingEvents = nil
		evMu.Unlock()

		countEvents(&summary, res.Events)
		results = append(results, res)
	}

	summary.Steps = len(results)
	summary.FinalMonitored = sched.MonitoredSiteIDs()
	return results, summary, nil
}

// Verify checks run results against a fixture's expected_results block.
// Expected entries reference steps by index; steps without an entry are
// unchecked.
func Verify(f *Fixture, results []StepResult) error {
	byStep := make(map[int]StepResult, len(results))
	for _, r := range results {
		byStep[r.Step] = r
	}
	for _, exp := range f.Expected {
		got, ok := byStep[exp.Step]
		if !ok {
			return fmt.Errorf("expected_results references step %d, run had %d steps", exp.Step, len(results))
		}
		if got.Monitored != exp.Monitored {
			return fmt.Errorf("step %d: monitored = %d, want %d", exp.Step, got.Monitored, exp.Monitored)
		}
		if !equalStrings(got.Admitted, exp.Admitted) {
			return fmt.Errorf("step %d: admitted = %v, want %v", exp.Step, got.Admitted, exp.Admitted)
		}
		if !equalStrings(got.Evicted, exp.Evicted) {
			return fmt.Errorf("step %d: evicted = %v, want %v", exp.Step, got.Evicted, exp.Evicted)
		}
		if !equalStrings(got.Events, exp.Events) {
			return fmt.Errorf("step %d: events = %v, want %v", exp.Step, got.Events, exp.Events)
		}
	}
	return nil
}

// #endregion run

// #region helpers

func applyCatalogEdits(source *sitesource.Static, step FixtureStep) {
	for _, add := range step.AddSites {
		site := add.Site()
		replaced := false
		for i := range source.Sites {
			if source.Sites[i].ID == site.ID {
				source.Sites[i] = site
				replaced = true
				break
			}
		}
		if !replaced {
			source.Sites = append(source.Sites, site)
		}
	}
	for _, id := range step.RemoveSiteIDs {
		for i := range source.Sites {
			if source.Sites[i].ID == id {
				source.Sites = append(source.Sites[:i], source.Sites[i+1:]...)
				break
			}
		}
	}
}

func countEvents(s *Summary, events []string) {
	for _, ev := range events {
		switch {
		case hasKind(ev, proximity.EventArrived):
			s.Arrivals++
		case hasKind(ev, proximity.EventDeparted):
			s.Departures++
		case hasKind(ev, proximity.EventCompleted):
			s.Completions++
		}
	}
}

func hasKind(ev string, kind proximity.EventKind) bool {
	prefix := string(kind) + ":"
	return len(ev) > len(prefix) && ev[:len(prefix)] == prefix
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion helpers
