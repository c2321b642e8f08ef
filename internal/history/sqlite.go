// Package history keeps a SQLite record of finished build runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// MemoryPath selects an in-memory database.
const MemoryPath = ":memory:"

// Run is one recorded build.
type Run struct {
	ID             int64
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Outcome        string
	Scope          string
	Forced         bool
	Commit         string
	Built          int
	Skipped        int
	Failed         int
	Deleted        int
	DeletedOutputs int
	Outputs        int
	Failures       []build.Failure
	Error          string
}

// SQLiteStore implements build.HistoryStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ build.HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and creates if needed) the history database at
// dbPath. Use MemoryPath for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, historyError(err, "create history directory").WithContext("path", dbPath).Build()
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, historyError(err, "open history database").WithContext("path", dbPath).Build()
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, historyError(err, "initialize history schema").WithContext("path", dbPath).Build()
	}
	return store, nil
}

func historyError(err error, msg string) *errors.ErrorBuilder {
	return errors.WrapError(err, errors.CategoryHistory, msg)
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		scope TEXT NOT NULL,
		forced INTEGER NOT NULL,
		vcs_commit TEXT,
		built INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		deleted INTEGER NOT NULL,
		deleted_outputs INTEGER NOT NULL,
		outputs INTEGER NOT NULL,
		failures TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a finished run.
func (s *SQLiteStore) Record(ctx context.Context, report *build.BuildReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failures []byte
	if len(report.Failures) > 0 {
		var err error
		failures, err = json.Marshal(report.Failures)
		if err != nil {
			return historyError(err, "marshal failures").Build()
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, duration_ms, outcome, scope, forced, vcs_commit,
			built, skipped, failed, deleted, deleted_outputs, outputs, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StartedAt.UnixMilli(), report.Duration.Milliseconds(), string(report.Outcome()),
		report.Scope, report.Forced, report.Commit,
		report.Built, report.Skipped, report.Failed, report.Deleted, report.DeletedOutputs, report.Outputs,
		string(failures), report.Error,
	)
	if err != nil {
		return historyError(err, "insert run").WithContext("run_id", report.RunID).Build()
	}
	return nil
}

const selectRuns = `SELECT id, run_id, started_at, duration_ms, outcome, scope, forced, vcs_commit,
	built, skipped, failed, deleted, deleted_outputs, outputs, failures, error FROM runs`

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+" ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, historyError(err, "query runs").Build()
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, historyError(err, "iterate runs").Build()
	}
	return runs, nil
}

// Get returns the run with the given run ID.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		startedMS  int64
		durationMS int64
		commit     sql.NullString
		failures   sql.NullString
		errText    sql.NullString
	)
	err := row.Scan(&r.ID, &r.RunID, &startedMS, &durationMS, &r.Outcome, &r.Scope, &r.Forced, &commit,
		&r.Built, &r.Skipped, &r.Failed, &r.Deleted, &r.DeletedOutputs, &r.Outputs, &failures, &errText)
	if stderrors.Is(err, sql.ErrNoRows) {
		return r, errors.NewError(errors.CategoryNotFound, "build run not found").Build()
	}
	if err != nil {
		return r, historyError(err, "scan run").Build()
	}

	r.StartedAt = time.UnixMilli(startedMS).UTC()
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Commit = commit.String
	r.Error = errText.String
	if failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &r.Failures); err != nil {
			return r, historyError(err, "unmarshal failures").Build()
		}
	}
	return r, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
