package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/position.report/internal/location"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleAt(offset time.Duration, acc float64) location.Sample {
	return location.Sample{
		Latitude:           48.1173 + offset.Seconds()*1e-5,
		Longitude:          11.5167,
		HorizontalAccuracy: acc,
		Timestamp:          t0.Add(offset),
	}
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous)
}

func TestMigrationsApplied(t *testing.T) {
	db := newTestDB(t)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'tracker_events'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
}

func TestInsertAndQuerySamples(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertSample(ctx, "a", sampleAt(0, 5)))
	require.NoError(t, db.InsertSample(ctx, "a", sampleAt(time.Second, 4)))
	require.NoError(t, db.InsertSample(ctx, "b", sampleAt(time.Minute, 3)))

	all, err := db.RecentSamples(ctx, SampleQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].SessionID)
	assert.Equal(t, t0.Add(time.Minute), all[0].Timestamp)
	assert.Equal(t, sampleAt(0, 5), all[2].Sample)

	bySession, err := db.RecentSamples(ctx, SampleQuery{SessionID: "a"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	recent, err := db.RecentSamples(ctx, SampleQuery{Since: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := db.RecentSamples(ctx, SampleQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].SessionID)
}

func TestPruneSamples(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.InsertSample(ctx, "s", sampleAt(time.Duration(i)*time.Hour, 5)))
	}
	n, err := db.PruneSamples(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := db.RecentSamples(ctx, SampleQuery{})
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestInsertAndQueryEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertEvent(ctx, location.Event{Kind: location.EventStarted, SessionID: "s1", Phase: location.PhaseActive, At: t0}))
	require.NoError(t, db.InsertEvent(ctx, location.Event{Kind: location.EventFailure, SessionID: "s1", Phase: location.PhaseSleeping, At: t0.Add(time.Second), Detail: "unplugged"}))

	events, err := db.Events(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "failure", events[0].Kind)
	assert.Equal(t, "sleeping", events[0].Phase)
	assert.Equal(t, "unplugged", events[0].Detail)
	assert.Equal(t, t0.Add(time.Second), events[0].At)
	assert.Contains(t, events[1].String(), "started")
}

func TestAccuracyStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	empty, err := db.AccuracyStats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, empty.Count)

	for i, acc := range []float64{8, 2, 6, 4, 0} {
		require.NoError(t, db.InsertSample(ctx, "s", sampleAt(time.Duration(i)*time.Second, acc)))
	}

	st, err := db.AccuracyStats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 4, st.Count)
	assert.InDelta(t, 5, st.Mean, 1e-9)
	assert.InDelta(t, 2.582, st.StdDev, 1e-3)
	assert.Equal(t, 2.0, st.Min)
	assert.Equal(t, 8.0, st.Max)
	assert.Equal(t, 4.0, st.P50)
	assert.Equal(t, 8.0, st.P95)
	assert.Equal(t, t0, st.First)
	assert.Equal(t, t0.Add(3*time.Second), st.Last)

	later, err := db.AccuracyStats(ctx, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, later.Count)
}

func localHostRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminBackup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.InsertSample(context.Background(), "s", sampleAt(0, 5)))

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/backup"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".db.gz")

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}

func TestAdminTailSQLMounted(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tailsql")
}
