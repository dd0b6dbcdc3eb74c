// Command inspect prints the persisted scheduler state from a device (or dev)
// database: the consent phase, the site catalog size, and the most recent
// scheduling cycles from the journal.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/driftlog/proximity/go-scheduler/internal/journal"
	"github.com/driftlog/proximity/go-scheduler/internal/phase"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to driftlog.db")
	last := flag.Int("last", 20, "show N most recent cycles")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/driftlog.db [--last N] [--json]")
		os.Exit(2)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(db, *last, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region report

type report struct {
	Phase  phase.Phase `json:"phase"`
	Sites  int         `json:"sites"`
	Cycles []cycleRow  `json:"cycles"`
}

type cycleRow struct {
	CycleID    string   `json:"cycle_id"`
	Trigger    string   `json:"trigger"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason,omitempty"`
	Candidates int      `json:"candidates"`
	Admitted   []string `json:"admitted,omitempty"`
	Evicted    []string `json:"evicted,omitempty"`
	Monitored  int      `json:"monitored"`
	DurationMs float64  `json:"duration_ms"`
	CreatedAt  string   `json:"created_at"`
}

func run(db *sql.DB, last int, jsonOut bool) error {
	phaseStore, err := phase.NewStore(db)
	if err != nil {
		return err
	}
	ph, err := phaseStore.Load()
	if err != nil {
		return err
	}

	sites, err := sitesource.NewStore(db)
	if err != nil {
		return err
	}
	siteCount, err := sites.Count()
	if err != nil {
		return err
	}

	jn, err := journal.New(db)
	if err != nil {
		return err
	}
	entries, err := jn.Tail(last)
	if err != nil {
		return err
	}

	rep := report{Phase: ph, Sites: siteCount, Cycles: make([]cycleRow, len(entries))}
	for i, e := range entries {
		rep.Cycles[i] = cycleRow{
			CycleID:    e.CycleID,
			Trigger:    e.Trigger,
			Outcome:    e.Outcome,
			Reason:     e.Reason,
			Candidates: e.Candidates,
			Admitted:   e.Admitted,
			Evicted:    e.Evicted,
			Monitored:  e.Monitored,
			DurationMs: float64(e.Duration.Microseconds()) / 1000,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printTable(rep)
	return nil
}

func printTable(rep report) {
	fmt.Printf("phase: %s | sites: %d\n\n", rep.Phase, rep.Sites)
	if len(rep.Cycles) == 0 {
		fmt.Println("no cycles journaled")
		return
	}
	fmt.Printf("%-10s  %-9s  %-7s  %5s  %4s  %4s  %9s  %8s  %s\n",
		"Cycle", "Trigger", "Outcome", "Cand", "Adm", "Evi", "Monitored", "Dur(ms)", "Time")
	for _, c := range rep.Cycles {
		id := c.CycleID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%-10s  %-9s  %-7s  %5d  %4d  %4d  %9d  %8.1f  %s\n",
			id, c.Trigger, c.Outcome, c.Candidates,
			len(c.Admitted), len(c.Evicted), c.Monitored, c.DurationMs, c.CreatedAt)
		if c.Reason != "" {
			fmt.Printf("%-10s  reason: %s\n", "", strings.TrimSpace(c.Reason))
		}
	}
}

// #endregion report
