// Package journal persists one row per scheduling cycle: what triggered it,
// what the diff decided, and how it went. Diagnostics only; the scheduler
// never reads it back, but cmd/inspect and cmd/fixture-export do.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS cycle_journal (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id     TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	candidates   INTEGER NOT NULL,
	admitted     TEXT,
	evicted      TEXT,
	monitored    INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	reason       TEXT,
	duration_ms  REAL NOT NULL,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// #region entry

// Entry is a single cycle record.
type Entry struct {
	CycleID    string
	Trigger    string // "position" | "coalesced" | "manual"
	Lat        float64
	Lon        float64
	Candidates int
	Admitted   []string
	Evicted    []string
	Monitored  int    // live region count after the cycle
	Outcome    string // "success" | "failure"
	Reason     string
	Duration   time.Duration
	CreatedAt  time.Time
}

// #endregion entry

// #region journal

// Journal writes cycle entries to SQLite.
type Journal struct {
	db *sql.DB
}

// New creates the cycle_journal table if needed and returns a journal.
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate cycle_journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Log appends one cycle entry.
func (j *Journal) Log(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	admitted, err := json.Marshal(e.Admitted)
	if err != nil {
		return fmt.Errorf("marshal admitted: %w", err)
	}
	evicted, err := json.Marshal(e.Evicted)
	if err != nil {
		return fmt.Errorf("marshal evicted: %w", err)
	}

	_, err = j.db.Exec(
		`INSERT INTO cycle_journal
		 (cycle_id, trigger_type, lat, lon, candidates, admitted, evicted, monitored, outcome, reason, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CycleID, e.Trigger, e.Lat, e.Lon, e.Candidates,
		string(admitted), string(evicted), e.Monitored,
		e.Outcome, nullIfEmpty(e.Reason),
		float64(e.Duration)/float64(time.Millisecond),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log cycle: %w", err)
	}
	return nil
}

// Tail returns the most recent entries, newest first.
func (j *Journal) Tail(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT cycle_id, trigger_type, lat, lon, candidates, admitted, evicted, monitored, outcome, reason, duration_ms, created_at
		 FROM cycle_journal ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tail: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var admitted, evicted string
		var reason sql.NullString
		var durationMs float64
		var createdStr string
		if err := rows.Scan(&e.CycleID, &e.Trigger, &e.Lat, &e.Lon, &e.Candidates,
			&admitted, &evicted, &e.Monitored, &e.Outcome, &reason, &durationMs, &createdStr); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if err := json.Unmarshal([]byte(admitted), &e.Admitted); err != nil {
			return nil, fmt.Errorf("unmarshal admitted: %w", err)
		}
		if err := json.Unmarshal([]byte(evicted), &e.Evicted); err != nil {
			return nil, fmt.Errorf("unmarshal evicted: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		e.Duration = time.Duration(durationMs * float64(time.Millisecond))
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion journal

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
