// Command scheduler runs the geofence scheduling core against a site database,
// driven by JSON lines on stdin. It stands in for the app shell during
// development: positions and region callbacks that production receives from
// the platform arrive here as typed input lines.
//
//	{"kind":"position","lat":20.0,"lon":-87.0,"accuracy_m":30}
//	{"kind":"enter","site_id":"palancar"}
//	{"kind":"exit","site_id":"palancar"}
//	{"kind":"auth","status":"authorized"}
//	{"kind":"policy","policy":"boat_mode"}
//	{"kind":"background"} / {"kind":"foreground"}
//	{"kind":"recompute"}
package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/health"
	"github.com/driftlog/proximity/go-scheduler/internal/journal"
	"github.com/driftlog/proximity/go-scheduler/internal/notify"
	"github.com/driftlog/proximity/go-scheduler/internal/phase"
	"github.com/driftlog/proximity/go-scheduler/internal/platform"
	"github.com/driftlog/proximity/go-scheduler/internal/position"
	"github.com/driftlog/proximity/go-scheduler/internal/power"
	"github.com/driftlog/proximity/go-scheduler/internal/proximity"
	"github.com/driftlog/proximity/go-scheduler/internal/scheduler"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
)

// #region input

type inputLine struct {
	Kind      string  `json:"kind"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`
	SiteID    string  `json:"site_id"`
	Status    string  `json:"status"`
	Policy    string  `json:"policy"`
}

// #endregion input

// #region main

func main() {
	_ = godotenv.Load()

	dbPath := envOr("DRIFTLOG_DB", "driftlog.db")
	metricsAddr := envOr("METRICS_ADDR", ":9091")

	db, err := openDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	sites, err := sitesource.NewStore(db)
	if err != nil {
		log.Fatalf("site store: %v", err)
	}
	phaseStore, err := phase.NewStore(db)
	if err != nil {
		log.Fatalf("phase store: %v", err)
	}
	jn, err := journal.New(db)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}

	// The mock platform stands in for the real location adapters; input lines
	// below play the part of the OS.
	mock := platform.NewMock(platform.AuthorizationStatus(envOr("DRIFTLOG_AUTH", string(platform.AuthAuthorized))))

	bridge := notify.NewBridge(logDispatcher{}, notify.DefaultReminderDelay)
	machine := proximity.NewMachine(proximity.DefaultConfig(), bridge.HandleEvent)

	var provider *position.Provider
	hm := health.NewMonitor(health.DefaultConfig(), func(e health.Escalation) {
		// Safe mode for this process: drop to the most conservative sampling
		// profile until an operator intervenes.
		log.Printf("[MAIN] degraded (%s), applying critical power policy", e.Reason)
		provider.SetPolicy(power.PolicyCritical)
	})

	sched := scheduler.New(scheduler.DefaultConfig(), sites, mock.RegionFacet(), hm, machine, jn)

	var ctrl *phase.Controller
	provider = position.NewProvider(mock, func() phase.Phase { return ctrl.CurrentPhase() }, position.DefaultConfig())
	provider.OnUpdate(func(u position.Update) { sched.UpdatePosition(u.Position) })

	ctrl, err = phase.NewController(phaseStore, mock, func() {
		provider.Start()
		sched.Start()
	})
	if err != nil {
		log.Fatalf("phase controller: %v", err)
	}

	// Consent-prompt outcomes and settings-toggle flips come back through the
	// provider's callback funnel; the stdin loop below is the only writer, so
	// delivery into the controller stays serialized.
	provider.OnAuthorizationChanged(ctrl.OnSystemAuthorizationChanged)
	provider.OnPolicyChange(func(pol power.Policy) {
		interval := power.ProfileFor(pol).RefreshInterval
		sched.SetCycleInterval(interval)
		if pol.Degraded() {
			log.Printf("[MAIN] degraded policy %s: recompute throttled to %s", pol, interval)
		}
	})

	// prompted/denied are fine here: a later {"kind":"auth"} line moves the
	// phase and starts monitoring through the controller.
	log.Printf("[MAIN] start outcome: %s (phase=%s)", ctrl.RequestStart(true), ctrl.CurrentPhase())
	defer sched.Stop()
	defer provider.Stop()

	go func() {
		log.Printf("[MAIN] metrics on %s/metrics", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, promhttp.Handler()); err != nil {
			log.Printf("[MAIN] metrics listener: %v", err)
		}
	}()

	fmt.Println("Proximity scheduler ready.")
	fmt.Printf("  DB: %s | Metrics: %s\n", dbPath, metricsAddr)
	fmt.Println("Feed JSON lines (or 'quit' to exit):")

	prefix := scheduler.DefaultConfig().RegionPrefix
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		var in inputLine
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			log.Printf("[MAIN] bad input: %v", err)
			continue
		}

		switch in.Kind {
		case "position":
			mock.EmitPosition(geo.Position{
				Coordinate: geo.Coordinate{Lat: in.Lat, Lon: in.Lon},
				AccuracyM:  in.AccuracyM,
				Timestamp:  time.Now(),
			})
		case "enter":
			mock.EmitEnter(scheduler.RegionID(prefix, in.SiteID))
		case "exit":
			mock.EmitExit(scheduler.RegionID(prefix, in.SiteID))
		case "auth":
			mock.SetAuthorization(platform.AuthorizationStatus(in.Status))
		case "policy":
			provider.SetPolicy(power.Policy(in.Policy))
		case "background":
			provider.EnterBackground()
		case "foreground":
			provider.EnterForeground()
		case "recompute":
			sched.Recompute()
		case "status":
			fmt.Printf("phase=%s monitored=%v policy=%s\n", ctrl.CurrentPhase(), sched.MonitoredSiteIDs(), provider.Policy())
		default:
			log.Printf("[MAIN] unknown kind %q", in.Kind)
		}
	}
}

// #endregion main

// #region helpers

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// logDispatcher prints notification intents instead of touching a real
// notification center.
type logDispatcher struct{}

func (logDispatcher) ScheduleDelayed(siteID string, delay time.Duration) error {
	log.Printf("[NOTIFY] reminder for %s in %s", siteID, delay)
	return nil
}

func (logDispatcher) ScheduleImmediate(siteID string) error {
	log.Printf("[NOTIFY] dive completed prompt for %s", siteID)
	return nil
}

func (logDispatcher) Cancel(siteID string) error {
	log.Printf("[NOTIFY] cancelled reminder for %s", siteID)
	return nil
}

// #endregion helpers
