// Package history stores smoke run outcomes in a local SQLite database so
// later runs can detect recoveries and the CLI can list past results.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is the database file used when history is enabled without a path.
const DefaultPath = ".portalsmoke/history.db"

// timeLayout sorts lexically in chronological order (fixed-width, UTC).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoRuns is returned by LastRun on an empty database.
var ErrNoRuns = errors.New("no recorded runs")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	base_url    TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	percent     REAL NOT NULL,
	verdict     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
CREATE TABLE IF NOT EXISTS checks (
	run_id      TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	method      TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	status      TEXT NOT NULL,
	status_code INTEGER,
	message     TEXT NOT NULL,
	duration_ms REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// Run is one recorded smoke run
type Run struct {
	ID        string        `json:"id"`
	BaseURL   string        `json:"baseUrl"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Percent   float64       `json:"percent"`
	Verdict   string        `json:"verdict"`
}

// AllPassed reports whether the run had no failing checks.
func (r *Run) AllPassed() bool {
	return r.Failed == 0
}

// Check is one recorded check of a run
type Check struct {
	Seq        int     `json:"seq"`
	Name       string  `json:"name"`
	Method     string  `json:"method"`
	Endpoint   string  `json:"endpoint"`
	Status     string  `json:"status"`
	StatusCode *int    `json:"statusCode,omitempty"`
	Message    string  `json:"message"`
	DurationMs float64 `json:"durationMs"`
}

// Store is a SQLite-backed run history
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path. Both plain
// file paths and sqlite:// / sqlite: connection strings are accepted.
func Open(path string) (*Store, error) {
	dsn := ParsePath(path)
	if dsn == "" {
		return nil, errors.New("history path is empty")
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	return &Store{db: db, path: dsn}, nil
}

// NewStore wraps an already opened database whose schema is in place.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ParsePath strips a sqlite:// or sqlite: prefix from a history location.
func ParsePath(path string) string {
	path = strings.TrimSpace(path)
	if p, ok := strings.CutPrefix(path, "sqlite://"); ok {
		return p
	}
	if p, ok := strings.CutPrefix(path, "sqlite:"); ok {
		return p
	}
	return path
}

// Path returns the database file in use.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun records a finished run and its checks in one transaction.
func (s *Store) SaveRun(ctx context.Context, baseURL string, summary *runner.Summary, results []*runner.TestResult) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		BaseURL:   baseURL,
		StartedAt: time.Now().Add(-summary.Duration).UTC(),
		Duration:  summary.Duration,
		Total:     summary.Total,
		Passed:    summary.Passed,
		Failed:    summary.Failed,
		Percent:   summary.Percent,
		Verdict:   string(summary.Verdict),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, base_url, started_at, duration_ms, total, passed, failed, percent, verdict)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BaseURL, run.StartedAt.Format(timeLayout), run.Duration.Milliseconds(),
		run.Total, run.Passed, run.Failed, run.Percent, run.Verdict)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checks (run_id, seq, name, method, endpoint, status, status_code, message, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare check insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		var code sql.NullInt64
		if r.StatusCode != nil {
			code = sql.NullInt64{Int64: int64(*r.StatusCode), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, run.ID, i+1, r.Name, r.Method, r.Endpoint, string(r.Status),
			code, r.Message, float64(r.Duration.Microseconds())/1000)
		if err != nil {
			return nil, fmt.Errorf("failed to insert check %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

const runColumns = `id, base_url, started_at, duration_ms, total, passed, failed, percent, verdict`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		run        Run
		startedAt  string
		durationMs int64
	)
	if err := row.Scan(&run.ID, &run.BaseURL, &startedAt, &durationMs,
		&run.Total, &run.Passed, &run.Failed, &run.Percent, &run.Verdict); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	run.StartedAt = t
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

// LastRun returns the most recent run, optionally restricted to baseURL.
// It returns ErrNoRuns when nothing matches.
func (s *Store) LastRun(ctx context.Context, baseURL string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if baseURL != "" {
		query += ` WHERE base_url = ?`
		args = append(args, baseURL)
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Checks returns the recorded checks of a run in execution order.
func (s *Store) Checks(ctx context.Context, runID string) ([]*Check, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, name, method, endpoint, status, status_code, message, duration_ms
		 FROM checks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checks: %w", err)
	}
	defer rows.Close()

	var checks []*Check
	for rows.Next() {
		var (
			c    Check
			code sql.NullInt64
		)
		if err := rows.Scan(&c.Seq, &c.Name, &c.Method, &c.Endpoint, &c.Status, &code, &c.Message, &c.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		if code.Valid {
			v := int(code.Int64)
			c.StatusCode = &v
		}
		checks = append(checks, &c)
	}
	return checks, rows.Err()
}

// Prune deletes all but the newest keep runs and reports how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}
