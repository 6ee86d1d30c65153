package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/vecmath"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(Migrations()))
	require.NoError(t, db.MigrateUp(Migrations()), "second run is a no-op")
	version, dirty, err = db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown(Migrations()))
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sessions'`).Scan(&n))
	assert.Zero(t, n)
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)

	s, err := db.StartSession(7, "v0.3.0", t0)
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, db.EndSession(s.ID, t0.Add(time.Minute)))
	got, err = db.Session(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *got.EndedAt)

	_, err = db.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, db.EndSession("missing", t0), ErrSessionNotFound)

	second, err := db.StartSession(7, "v0.3.0", t0.Add(time.Hour))
	require.NoError(t, err)
	list, err := db.Sessions(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	db := newTestDB(t)
	s, err := db.StartSession(1, "dev", t0)
	require.NoError(t, err)
	store := db.ForSession(s.ID)

	require.NoError(t, store.RecordTransition(commander.Transition{
		From: commander.Fresh, To: commander.Degraded, Inactivity: 600 * time.Millisecond,
	}, t0.Add(time.Second)))
	require.NoError(t, store.RecordTransition(commander.Transition{
		From: commander.Degraded, To: commander.Shutdown, Inactivity: 2100 * time.Millisecond,
	}, t0.Add(2*time.Second)))

	events, err := db.WatchdogEvents(s.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []WatchdogEvent{
		{At: t0.Add(time.Second), From: "fresh", To: "degraded", InactivityMS: 600},
		{At: t0.Add(2 * time.Second), From: "degraded", To: "shutdown", InactivityMS: 2100},
	}, events)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordEstimate(navigation.Estimate{
			Position: vecmath.Vec{X: float64(i), Y: 1, Z: 2},
			Anchors:  [3]uint8{1, 2, 3},
			At:       t0.Add(time.Duration(i) * time.Second),
			Valid:    true,
		}))
	}
	rows, err := db.RecentEstimates(s.ID, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2.0, rows[0].Position.X)
	assert.Equal(t, 4.0, rows[2].Position.X)
	assert.Equal(t, [3]uint8{1, 2, 3}, rows[2].Anchors)
	assert.Equal(t, t0.Add(4*time.Second), rows[2].At)
}

func TestRecordRequiresSession(t *testing.T) {
	db := newTestDB(t)
	err := db.ForSession("nope").RecordEstimate(navigation.Estimate{At: t0})
	assert.Error(t, err, "foreign key enforced")
}

func TestAdminRoutesRegistered(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	// debug access control may answer 403 here; the route must exist
	for _, path := range []string{"/debug/backup", "/debug/tailsql/"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestBackupHandler(t *testing.T) {
	db := newTestDB(t)
	_, err := db.StartSession(1, "dev", t0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	db.handleBackup(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.Greater(t, len(data), 16)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
