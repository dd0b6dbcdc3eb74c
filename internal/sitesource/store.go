package sitesource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	_ "modernc.org/sqlite"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	site_id TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	lat     REAL NOT NULL,
	lon     REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_lat ON sites(lat);
CREATE INDEX IF NOT EXISTS idx_sites_lon ON sites(lon);
`

// #endregion schema

// #region store

// Store is the SQLite-backed Source over the sites table.
type Store struct {
	db *sql.DB
}

// NewStore creates the sites table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate sites: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts or replaces a site.
func (s *Store) Put(site geo.CandidateSite) error {
	_, err := s.db.Exec(
		`INSERT INTO sites (site_id, name, lat, lon) VALUES (?, ?, ?, ?)
		 ON CONFLICT(site_id) DO UPDATE SET name = excluded.name, lat = excluded.lat, lon = excluded.lon`,
		site.ID, site.Name, site.Center.Lat, site.Center.Lon,
	)
	if err != nil {
		return fmt.Errorf("put site %s: %w", site.ID, err)
	}
	return nil
}

// Delete removes a site by ID. Missing IDs are not an error.
func (s *Store) Delete(siteID string) error {
	if _, err := s.db.Exec(`DELETE FROM sites WHERE site_id = ?`, siteID); err != nil {
		return fmt.Errorf("delete site %s: %w", siteID, err)
	}
	return nil
}

// All returns every stored site, ordered by ID.
func (s *Store) All() ([]geo.CandidateSite, error) {
	rows, err := s.db.Query(`SELECT site_id, name, lat, lon FROM sites ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []geo.CandidateSite
	for rows.Next() {
		var site geo.CandidateSite
		if err := rows.Scan(&site.ID, &site.Name, &site.Center.Lat, &site.Center.Lon); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

// Count returns the number of stored sites.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sites: %w", err)
	}
	return n, nil
}

// #endregion store

// #region nearby

// Nearby returns sites within radiusKm of pos, sorted ascending by distance.
// A bounding-box prefilter keeps the SQL cheap; exact haversine filtering and
// ordering happen in Go on the (small) prefiltered set.
func (s *Store) Nearby(ctx context.Context, pos geo.Coordinate, radiusKm float64, limit int) ([]geo.CandidateSite, error) {
	minLat, maxLat, minLon, maxLon := geo.BoundingBox(pos, radiusKm)

	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, name, lat, lon FROM sites
		 WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`,
		minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return nil, fmt.Errorf("nearby query: %w", err)
	}
	defer rows.Close()

	var out []geo.CandidateSite
	for rows.Next() {
		var site geo.CandidateSite
		if err := rows.Scan(&site.ID, &site.Name, &site.Center.Lat, &site.Center.Lon); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		if geo.DistanceKm(pos, site.Center) <= radiusKm {
			out = append(out, site)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearby rows: %w", err)
	}

	sortByDistance(out, pos)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// #endregion nearby
