// Command seed-sites loads a dive-site catalog from a JSON file into the
// sites table. The input is an array of {id, name, lat, lon} objects, the
// same shape the replay fixture uses.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/sitesource"
)

// #region main

type siteRecord struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func main() {
	_ = godotenv.Load()

	inPath := flag.String("in", "", "path to site catalog JSON")
	dbPath := flag.String("db", envOr("DRIFTLOG_DB", "driftlog.db"), "path to driftlog.db")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: seed-sites --in sites.json [--db path/to/driftlog.db]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		log.Fatalf("read catalog: %v", err)
	}
	var records []siteRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Fatalf("parse catalog: %v", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store, err := sitesource.NewStore(db)
	if err != nil {
		log.Fatalf("site store: %v", err)
	}

	seeded := 0
	for _, r := range records {
		if r.ID == "" {
			log.Printf("skipping record with empty id (name=%q)", r.Name)
			continue
		}
		err := store.Put(geo.CandidateSite{
			ID:     r.ID,
			Name:   r.Name,
			Center: geo.Coordinate{Lat: r.Lat, Lon: r.Lon},
		})
		if err != nil {
			log.Fatalf("put %s: %v", r.ID, err)
		}
		seeded++
	}

	total, err := store.Count()
	if err != nil {
		log.Fatalf("count: %v", err)
	}
	fmt.Printf("seeded %d sites (%d total) into %s\n", seeded, total, *dbPath)
}

// #endregion main

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
