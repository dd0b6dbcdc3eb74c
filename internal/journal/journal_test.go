package journal

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLogAndTail(t *testing.T) {
	j, err := New(openTestDB(t))
	require.NoError(t, err)

	require.NoError(t, j.Log(Entry{
		CycleID:    "c1",
		Trigger:    "position",
		Lat:        20.0,
		Lon:        -87.0,
		Candidates: 3,
		Admitted:   []string{"palancar", "columbia"},
		Monitored:  2,
		Outcome:    "success",
		Duration:   120 * time.Millisecond,
	}))
	require.NoError(t, j.Log(Entry{
		CycleID:   "c2",
		Trigger:   "coalesced",
		Lat:       20.1,
		Lon:       -87.0,
		Evicted:   []string{"palancar"},
		Monitored: 1,
		Outcome:   "failure",
		Reason:    "install refused",
		Duration:  40 * time.Millisecond,
	}))

	entries, err := j.Tail(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "c2", entries[0].CycleID)
	assert.Equal(t, "failure", entries[0].Outcome)
	assert.Equal(t, "install refused", entries[0].Reason)
	assert.Equal(t, []string{"palancar"}, entries[0].Evicted)

	assert.Equal(t, "c1", entries[1].CycleID)
	assert.Equal(t, []string{"palancar", "columbia"}, entries[1].Admitted)
	assert.Empty(t, entries[1].Reason)
	assert.Equal(t, 120*time.Millisecond, entries[1].Duration)
	assert.False(t, entries[1].CreatedAt.IsZero())
}

func TestTailRespectsLimit(t *testing.T) {
	j, err := New(openTestDB(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Log(Entry{
			CycleID: "c", Trigger: "position", Outcome: "success",
		}))
	}
	entries, err := j.Tail(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
