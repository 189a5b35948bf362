// Package runstore keeps a SQLite ledger of deployment runs and their
// progress events.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite"

	"github.com/example/repodeploy/internal/notify"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one ledger row.
type Run struct {
	ID          string    `json:"runId"`
	RepoURL     string    `json:"repoUrl"`
	RunDir      string    `json:"runDir,omitempty"`
	State       string    `json:"state"`
	FailureKind string    `json:"failureKind,omitempty"`
	Message     string    `json:"message,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	ProfileJSON string    `json:"profile,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Event is one recorded progress event.
type Event struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	State   string    `json:"state,omitempty"`
	Message string    `json:"message"`
	URL     string    `json:"url,omitempty"`
}

// Store is a SQLite-backed run ledger. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the ledger at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("run ledger path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  repo_url TEXT NOT NULL,
  run_dir TEXT NOT NULL,
  state TEXT NOT NULL,
  failure_kind TEXT NOT NULL,
  message TEXT NOT NULL,
  endpoint TEXT NOT NULL,
  profile_json TEXT NOT NULL,
  created_at_ns INTEGER NOT NULL,
  updated_at_ns INTEGER NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS run_events (
  run_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  ts_ns INTEGER NOT NULL,
  type TEXT NOT NULL,
  state TEXT NOT NULL,
  message TEXT NOT NULL,
  url TEXT NOT NULL,
  PRIMARY KEY (run_id, seq),
  FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at_ns);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// CreateRun inserts run. CreatedAt defaults to now.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (
  run_id, repo_url, run_dir, state, failure_kind, message, endpoint, profile_json,
  created_at_ns, updated_at_ns
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.ID, run.RepoURL, run.RunDir, run.State, run.FailureKind, run.Message, run.Endpoint, run.ProfileJSON,
		run.CreatedAt.UnixNano(), run.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Update carries the run columns to change; empty fields are left alone.
type Update struct {
	RunDir      string
	State       string
	FailureKind string
	Message     string
	Endpoint    string
	ProfileJSON string
}

// UpdateRun applies u to runID.
func (s *Store) UpdateRun(ctx context.Context, runID string, u Update) error {
	sets := []string{"updated_at_ns = ?"}
	args := []any{time.Now().UTC().UnixNano()}
	for _, col := range []struct {
		name  string
		value string
	}{
		{"run_dir", u.RunDir},
		{"state", u.State},
		{"failure_kind", u.FailureKind},
		{"message", u.Message},
		{"endpoint", u.Endpoint},
		{"profile_json", u.ProfileJSON},
	} {
		if col.value == "" {
			continue
		}
		sets = append(sets, col.name+" = ?")
		args = append(args, col.value)
	}
	args = append(args, runID)
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET `+strings.Join(sets, ", ")+` WHERE run_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent records ev and folds state, endpoint, and failure details into
// the run row.
func (s *Store) AppendEvent(ctx context.Context, ev notify.Event) error {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_events (run_id, seq, ts_ns, type, state, message, url)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, ev.RunID, ev.Seq, ts.UnixNano(), string(ev.Type), ev.State, ev.Message, ev.URL)
	if err != nil {
		return fmt.Errorf("insert event %s/%d: %w", ev.RunID, ev.Seq, err)
	}
	u := Update{State: ev.State}
	switch ev.Type {
	case notify.EventReady:
		u.Endpoint = ev.URL
		u.Message = ev.Message
	case notify.EventFailed:
		u.FailureKind = ev.Kind
		u.Message = ev.Message
	case notify.EventState, notify.EventInfo:
	}
	return s.UpdateRun(ctx, ev.RunID, u)
}

// GetRun returns runID or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, repo_url, run_dir, state, failure_kind, message, endpoint, profile_json, created_at_ns, updated_at_ns
FROM runs WHERE run_id = ?
`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// Events returns runID's events in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, ts_ns, type, state, message, url
FROM run_events WHERE run_id = ?
ORDER BY seq
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		var ts int64
		if err := rows.Scan(&ev.Seq, &ts, &ev.Type, &ev.State, &ev.Message, &ev.URL); err != nil {
			return nil, err
		}
		ev.Time = time.Unix(0, ts).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, repo_url, run_dir, state, failure_kind, message, endpoint, profile_json, created_at_ns, updated_at_ns
FROM runs
ORDER BY created_at_ns DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var created, updated int64
	if err := row.Scan(&run.ID, &run.RepoURL, &run.RunDir, &run.State, &run.FailureKind, &run.Message,
		&run.Endpoint, &run.ProfileJSON, &created, &updated); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	run.UpdatedAt = time.Unix(0, updated).UTC()
	return &run, nil
}

// Sink records delivered events, logging write failures instead of
// interrupting delivery.
func (s *Store) Sink(log logr.Logger) notify.Sink {
	return notify.SinkFunc(func(ev notify.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.AppendEvent(ctx, ev); err != nil {
			log.Error(err, "record progress event", "run", ev.RunID, "seq", ev.Seq)
		}
	})
}
