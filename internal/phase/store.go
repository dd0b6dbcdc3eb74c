package phase

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

// Single-row pointer table: the phase is one small tagged value, and an
// additive enum means no schema versioning is needed.
const schema = `
CREATE TABLE IF NOT EXISTS permission_phase (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	phase      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// #endregion schema

// #region store

// Store persists the permission phase across process restarts.
type Store struct {
	db *sql.DB
}

// NewStore creates the permission_phase table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate permission_phase: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the persisted phase, or PhaseInitial when none has been saved.
func (s *Store) Load() (Phase, error) {
	var raw string
	err := s.db.QueryRow(`SELECT phase FROM permission_phase WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return PhaseInitial, nil
	}
	if err != nil {
		return PhaseInitial, fmt.Errorf("load phase: %w", err)
	}
	p := Phase(raw)
	if !p.Valid() {
		return PhaseInitial, fmt.Errorf("load phase: unknown value %q", raw)
	}
	return p, nil
}

// Save upserts the phase.
func (s *Store) Save(p Phase) error {
	_, err := s.db.Exec(
		`INSERT INTO permission_phase (id, phase, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, updated_at = excluded.updated_at`,
		string(p), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save phase: %w", err)
	}
	return nil
}

// #endregion store
