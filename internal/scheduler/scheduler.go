// Package scheduler is the admission/eviction core: it turns the position
// stream into a bounded set of platform-monitored regions and classifies
// enter/exit callbacks back to site identifiers.
//
// One goroutine exclusively owns the monitored set, the proximity machine,
// and the health counters. Position updates and platform callbacks arrive on
// arbitrary threads and are funneled into that goroutine's mailbox; a burst
// of updates during a slow candidate query collapses into a single pending
// recompute via a one-slot dirty flag, never an unbounded queue.
package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/health"
	"github.com/driftlog/proximity/go-scheduler/internal/journal"
	"github.com/driftlog/proximity/go-scheduler/internal/platform"
	"github.com/driftlog/proximity/go-scheduler/internal/proximity"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
)

// #region types

// CycleResult summarizes one completed scheduling cycle.
type CycleResult struct {
	CycleID    string
	Trigger    string
	Success    bool
	Duration   time.Duration
	Candidates int
	Admitted   []string
	Evicted    []string
	Monitored  int
}

type eventKind int

const (
	eventEnter eventKind = iota
	eventExit
	eventMonitoringFailed
	eventBarrier
)

type regionEvent struct {
	kind     eventKind
	regionID string
	err      error
	ack      chan struct{}
}

// #endregion types

// #region scheduler-struct

// Scheduler owns the live monitored-region set. It is the only component
// permitted to install or remove regions with the platform facility.
type Scheduler struct {
	config  Config
	source  sitesource.Source
	monitor platform.RegionMonitor
	health  *health.Monitor
	prox    *proximity.Machine
	journal *journal.Journal // optional

	ctx    context.Context
	cancel context.CancelFunc

	events chan regionEvent
	kick   chan struct{}

	mu        sync.Mutex
	started   bool
	stopping  bool
	latest    *geo.Position
	dirty     bool
	trigger   string
	monitored map[string]platform.Region // site ID → installed region
	lastCycle time.Time
	stopped   chan struct{}

	cycleHook func(CycleResult) // test/replay hook, called from the actor goroutine
}

// New wires a scheduler. journal may be nil.
func New(config Config, source sitesource.Source, monitor platform.RegionMonitor,
	hm *health.Monitor, prox *proximity.Machine, jn *journal.Journal) *Scheduler {

	s := &Scheduler{
		config:    config,
		source:    source,
		monitor:   monitor,
		health:    hm,
		prox:      prox,
		journal:   jn,
		events:    make(chan regionEvent, 256),
		kick:      make(chan struct{}, 1),
		monitored: make(map[string]platform.Region),
	}
	monitor.SetCallbacks(platform.RegionCallbacks{
		OnEnter:            func(id string) { s.pushEvent(regionEvent{kind: eventEnter, regionID: id}) },
		OnExit:             func(id string) { s.pushEvent(regionEvent{kind: eventExit, regionID: id}) },
		OnMonitoringFailed: func(id string, err error) { s.pushEvent(regionEvent{kind: eventMonitoringFailed, regionID: id, err: err}) },
	})
	return s
}

// SetCycleHook registers a per-cycle observer. Must be set before Start.
func (s *Scheduler) SetCycleHook(fn func(CycleResult)) { s.cycleHook = fn }

// #endregion scheduler-struct

// #region lifecycle

// Start launches the actor goroutine. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopping = false
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stopped = make(chan struct{})
	go s.run()
}

// Stop shuts the actor down, discards any in-flight candidate query's result,
// and removes every installed region before returning. Idempotent; a no-op
// when never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	cancel := s.cancel
	stopped := s.stopped
	s.mu.Unlock()

	cancel()
	<-stopped

	s.mu.Lock()
	s.started = false
	s.dirty = false
	s.mu.Unlock()
}

// UpdatePosition feeds a new reading into the one-slot recompute queue.
// Safe to call from any goroutine, including before Start.
func (s *Scheduler) UpdatePosition(pos geo.Position) {
	s.mu.Lock()
	cp := pos
	s.latest = &cp
	if s.dirty {
		s.trigger = "coalesced"
	} else {
		s.dirty = true
		s.trigger = "position"
	}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Recompute marks the monitored set dirty at the last known position without
// a fresh reading: the manual trigger for catalog changes and operator
// tooling. No-op before the first position arrives; a recompute already
// pending keeps its original trigger.
func (s *Scheduler) Recompute() {
	s.mu.Lock()
	if s.latest == nil {
		s.mu.Unlock()
		return
	}
	if !s.dirty {
		s.dirty = true
		s.trigger = "manual"
	}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// SetCycleInterval retunes the recompute throttle, typically when a
// performance policy change loosens the sampling cadence. Safe from any
// goroutine; a pending recompute re-evaluates against the new interval.
func (s *Scheduler) SetCycleInterval(d time.Duration) {
	if d < 0 {
		return
	}
	s.mu.Lock()
	s.config.MinCycleInterval = d
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// MonitoredCount returns the number of live regions.
func (s *Scheduler) MonitoredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitored)
}

// MonitoredSiteIDs returns the monitored site IDs, sorted.
func (s *Scheduler) MonitoredSiteIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.monitored))
	for id := range s.monitored {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Flush blocks until every region event already in the mailbox has been
// processed. Only valid while the scheduler is running; used by tests and
// the replay harness to sequence callbacks deterministically.
func (s *Scheduler) Flush() {
	ack := make(chan struct{})
	s.events <- regionEvent{kind: eventBarrier, ack: ack}
	<-ack
}

func (s *Scheduler) pushEvent(ev regionEvent) {
	select {
	case s.events <- ev:
	default:
		// Never block a platform callback thread. A full mailbox means the
		// actor is wedged; health escalation covers that path.
		log.Printf("[SCHED] event mailbox full, dropping %v for %s", ev.kind, ev.regionID)
	}
}

// #endregion lifecycle

// #region actor-loop

func (s *Scheduler) run() {
	defer s.cleanup()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		if s.pendingRecompute() {
			wait := s.throttleRemaining()
			if wait <= 0 {
				s.runCycle()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(wait)
				timerC = timer.C
			}
		} else if timer != nil {
			if !timer.Stop() {
				<-timer.C
			}
			timer, timerC = nil, nil
		}

		select {
		case <-s.ctx.Done():
			if timer != nil && !timer.Stop() {
				<-timer.C
			}
			return
		case ev := <-s.events:
			s.handleRegionEvent(ev)
		case <-s.kick:
			// re-evaluate throttle with the fresh position
		case <-timerC:
			timer, timerC = nil, nil
		}
	}
}

func (s *Scheduler) pendingRecompute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty && s.latest != nil
}

func (s *Scheduler) throttleRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycle.IsZero() {
		return 0
	}
	return s.config.MinCycleInterval - time.Since(s.lastCycle)
}

// cleanup removes every installed region. Runs on the actor goroutine as its
// final act, so Stop's wait gives callers synchronous removal semantics.
func (s *Scheduler) cleanup() {
	s.mu.Lock()
	regions := make([]platform.Region, 0, len(s.monitored))
	for _, r := range s.monitored {
		regions = append(regions, r)
	}
	s.monitored = make(map[string]platform.Region)
	stopped := s.stopped
	s.mu.Unlock()

	for _, r := range regions {
		if err := s.monitor.Remove(r.ID); err != nil {
			log.Printf("[SCHED] remove on stop failed for %s: %v", r.ID, err)
		}
	}
	health.MonitoredRegions.Set(0)
	log.Printf("[SCHED] stopped, %d regions removed", len(regions))
	close(stopped)
}

// #endregion actor-loop

// #region region-events

// handleRegionEvent classifies a platform callback back to a site identifier
// and forwards it to the proximity machine. Identifiers outside our prefix
// belong to another subsystem sharing the region namespace and are ignored.
func (s *Scheduler) handleRegionEvent(ev regionEvent) {
	if ev.kind == eventBarrier {
		close(ev.ack)
		return
	}

	siteID, ok := SiteIDFromRegion(s.config.RegionPrefix, ev.regionID)
	if !ok {
		return
	}

	switch ev.kind {
	case eventEnter:
		s.prox.HandleEnter(siteID)
	case eventExit:
		s.prox.HandleExit(siteID)
	case eventMonitoringFailed:
		log.Printf("[SCHED] monitoring failed for site %s: %v", siteID, ev.err)
		s.mu.Lock()
		delete(s.monitored, siteID)
		n := len(s.monitored)
		s.mu.Unlock()
		health.MonitoredRegions.Set(float64(n))
	}
}

// #endregion region-events

// #region cycle

// runCycle performs one recompute: query candidates around the position that
// made the set dirty, then diff the live set against the target set.
func (s *Scheduler) runCycle() {
	start := time.Now()

	s.mu.Lock()
	pos := *s.latest
	trigger := s.trigger
	s.dirty = false
	s.mu.Unlock()

	cycleID := uuid.New().String()
	maxRegions := s.config.maxRegions()

	candidates, err := s.source.Nearby(s.ctx, pos.Coordinate, s.config.AdmitRadiusKm, maxRegions)

	// A result arriving after Stop is discarded, not applied.
	if s.ctx.Err() != nil {
		return
	}

	success := true
	reason := ""
	var admitted, evicted []string

	if err != nil {
		// Query failure: no diff this cycle. The next position update is the
		// retry; there is no dedicated retry loop.
		log.Printf("[SCHED] candidate query failed: %v", err)
		success = false
		reason = err.Error()
		candidates = nil
	} else {
		// Re-validate against the latest known position: the device may have
		// moved during the query and eviction distances must use the freshest
		// reading.
		s.mu.Lock()
		current := s.latest.Coordinate
		s.mu.Unlock()

		inTarget := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			inTarget[c.ID] = true
		}

		// Eviction: only regions both outside the target set and beyond the
		// eviction radius go. Sites in the 50-100 km band stay put.
		s.mu.Lock()
		for siteID, region := range s.monitored {
			if inTarget[siteID] {
				continue
			}
			if geo.DistanceKm(current, region.Center) <= s.config.EvictRadiusKm {
				continue
			}
			if err := s.monitor.Remove(region.ID); err != nil {
				// The platform may have already lost the region; dropping it
				// from the live set either way prevents a zombie from pinning
				// capacity.
				log.Printf("[SCHED] evict %s failed: %v", region.ID, err)
				success = false
				reason = err.Error()
			}
			delete(s.monitored, siteID)
			evicted = append(evicted, siteID)
		}

		// Admission, closest first. The capacity check runs immediately
		// before each install: eviction and admission are not atomic with
		// respect to platform callbacks, so the pre-diff count proves nothing.
		for _, site := range candidates {
			if _, ok := s.monitored[site.ID]; ok {
				continue
			}
			if len(s.monitored) >= maxRegions {
				break
			}
			region := platform.Region{
				ID:            RegionID(s.config.RegionPrefix, site.ID),
				Center:        site.Center,
				RadiusM:       s.config.RegionRadiusM,
				NotifyOnEntry: true,
				NotifyOnExit:  true,
			}
			if err := s.monitor.Install(region); err != nil {
				// Per-region: one bad install fails the cycle but never
				// aborts the rest of the diff.
				log.Printf("[SCHED] install %s failed: %v", region.ID, err)
				health.RegionInstallFailures.Inc()
				success = false
				reason = err.Error()
				continue
			}
			s.monitored[site.ID] = region
			admitted = append(admitted, site.ID)
		}
		monitoredNow := len(s.monitored)
		s.mu.Unlock()

		health.MonitoredRegions.Set(float64(monitoredNow))
	}

	duration := time.Since(start)
	s.health.RecordCycle(success, duration)

	s.mu.Lock()
	s.lastCycle = time.Now()
	monitored := len(s.monitored)
	s.mu.Unlock()

	sort.Strings(evicted)
	result := CycleResult{
		CycleID:    cycleID,
		Trigger:    trigger,
		Success:    success,
		Duration:   duration,
		Candidates: len(candidates),
		Admitted:   admitted,
		Evicted:    evicted,
		Monitored:  monitored,
	}

	log.Printf("[SCHED] cycle %s: trigger=%s candidates=%d admitted=%d evicted=%d monitored=%d success=%v",
		cycleID[:8], trigger, result.Candidates, len(admitted), len(evicted), monitored, success)

	if s.journal != nil {
		err := s.journal.Log(journal.Entry{
			CycleID:    cycleID,
			Trigger:    trigger,
			Lat:        pos.Lat,
			Lon:        pos.Lon,
			Candidates: result.Candidates,
			Admitted:   admitted,
			Evicted:    evicted,
			Monitored:  monitored,
			Outcome:    outcome(success),
			Reason:     reason,
			Duration:   duration,
		})
		if err != nil {
			log.Printf("[SCHED] journal write failed: %v", err)
		}
	}

	if s.cycleHook != nil {
		s.cycleHook(result)
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// #endregion cycle
