// Command fixture-export turns a device database into a replay fixture: the
// site catalog plus the journaled scheduling cycles as position steps, with
// the journaled admissions/evictions as the expected results. Replaying the
// exported fixture against changed tuning shows exactly where behavior drifts
// from what the device actually did.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/driftlog/proximity/go-scheduler/internal/journal"
	"github.com/driftlog/proximity/go-scheduler/internal/replay"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to driftlog.db")
	outPath := flag.String("out", "", "path for the fixture JSON")
	last := flag.Int("last", 50, "export the N most recent cycles")
	desc := flag.String("desc", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/driftlog.db --out fixture.json [--last N] [--desc text]")
		os.Exit(2)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	f, cycles, err := export(db, *last, *desc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	if err := replay.SaveFixture(*outPath, f); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("exported %d sites and %d cycles to %s\n", len(f.Sites), cycles, *outPath)
}

// #endregion main

// #region export

func export(db *sql.DB, last int, desc string) (*replay.Fixture, int, error) {
	sites, err := sitesource.NewStore(db)
	if err != nil {
		return nil, 0, err
	}
	catalog, err := sites.All()
	if err != nil {
		return nil, 0, err
	}

	jn, err := journal.New(db)
	if err != nil {
		return nil, 0, err
	}
	entries, err := jn.Tail(last)
	if err != nil {
		return nil, 0, err
	}
	// Tail is newest first; fixtures run chronologically.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	f := &replay.Fixture{Description: desc}
	for _, site := range catalog {
		f.Sites = append(f.Sites, replay.FixtureSite{
			ID:   site.ID,
			Name: site.Name,
			Lat:  site.Center.Lat,
			Lon:  site.Center.Lon,
		})
	}
	for i, e := range entries {
		f.Steps = append(f.Steps, replay.FixtureStep{
			Kind: "position",
			Lat:  e.Lat,
			Lon:  e.Lon,
		})
		f.Expected = append(f.Expected, replay.ExpectedStep{
			Step:      i,
			Monitored: e.Monitored,
			Admitted:  e.Admitted,
			Evicted:   e.Evicted,
		})
	}
	return f, len(entries), nil
}

// #endregion export
