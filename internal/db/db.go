// Package db persists accepted position samples and tracker transitions in
// SQLite.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/monitoring"
)

type DB struct {
	*sql.DB
	path string
}

// Applied to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and applies any outstanding migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// StoredSample is a sample row as persisted.
type StoredSample struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	location.Sample
}

// Event is a persisted tracker transition.
type Event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Phase     string    `json:"phase"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s session=%s phase=%s %s", e.At.Format(time.RFC3339), e.Kind, e.SessionID, e.Phase, e.Detail)
}

func (db *DB) InsertSample(ctx context.Context, sessionID string, s location.Sample) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO samples (session_id, latitude, longitude, horizontal_accuracy, sample_unix_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, s.Latitude, s.Longitude, s.HorizontalAccuracy, s.Timestamp.UnixMilli(),
	)
	return err
}

func (db *DB) InsertEvent(ctx context.Context, e location.Event) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tracker_events (kind, session_id, phase, detail, event_unix_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		string(e.Kind), e.SessionID, e.Phase.String(), e.Detail, e.At.UnixMilli(),
	)
	return err
}

// SampleQuery narrows RecentSamples. Zero fields are ignored.
type SampleQuery struct {
	Since     time.Time
	SessionID string
	Limit     int
}

// DefaultSampleLimit caps RecentSamples when no limit is given.
const DefaultSampleLimit = 500

// RecentSamples returns matching samples, newest first.
func (db *DB) RecentSamples(ctx context.Context, q SampleQuery) ([]StoredSample, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixMilli()
	}

	rows, err := db.QueryContext(ctx,
		`SELECT sample_id, session_id, latitude, longitude, horizontal_accuracy, sample_unix_ms
		   FROM samples
		  WHERE sample_unix_ms >= ? AND (? = '' OR session_id = ?)
		  ORDER BY sample_unix_ms DESC, sample_id DESC
		  LIMIT ?`,
		since, q.SessionID, q.SessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredSample
	for rows.Next() {
		var (
			s  StoredSample
			ms int64
		)
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Latitude, &s.Longitude, &s.HorizontalAccuracy, &ms); err != nil {
			return nil, err
		}
		s.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Events returns up to limit tracker events, newest first.
func (db *DB) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	rows, err := db.QueryContext(ctx,
		`SELECT event_id, kind, session_id, phase, detail, event_unix_ms
		   FROM tracker_events
		  ORDER BY event_unix_ms DESC, event_id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e  Event
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.SessionID, &e.Phase, &e.Detail, &ms); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(ms).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneSamples deletes samples older than cutoff and reports how many went.
func (db *DB) PruneSamples(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM samples WHERE sample_unix_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Position DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
}

// serveBackup snapshots the database with VACUUM INTO and streams it gzipped.
func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "position-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("backup stream failed: %v", err)
	}
}
