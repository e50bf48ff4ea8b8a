// Package history persists a ledger of gateway runs: every spawn, exit, and
// spawn failure, queryable by the status and doctor commands.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersion  = 1
	schemaChecksum = "cs-v1-runs-ledger"
)

// DBFileName is the history database inside the state dir.
const DBFileName = "history.db"

// Run is one supervised gateway lifecycle.
type Run struct {
	ID         string
	PID        int
	StartedAt  time.Time
	EndedAt    *time.Time
	ExitCode   *int
	Signal     string
	Crashed    bool
	SpawnError string
}

// Store is the sqlite-backed run ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database in stateDir.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(stateDir, DBFileName)
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pid INTEGER,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			exit_code INTEGER,
			signal TEXT NOT NULL DEFAULT '',
			crashed INTEGER NOT NULL DEFAULT 0,
			spawn_error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)`,
		schemaVersion, schemaChecksum, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// RecordStart inserts a new run row at spawn time.
func (s *Store) RecordStart(runID string, pid int, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, pid, started_at) VALUES (?, ?, ?)`,
		runID, pid, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordExit closes out a run row with its exit status.
func (s *Store) RecordExit(runID string, exitCode int, signal string, crashed bool, endedAt time.Time) error {
	crashedInt := 0
	if crashed {
		crashedInt = 1
	}
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ?, exit_code = ?, signal = ?, crashed = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano), exitCode, signal, crashedInt, runID)
	if err != nil {
		return fmt.Errorf("record run exit: %w", err)
	}
	return nil
}

// RecordSpawnError inserts a run row that never got a process.
func (s *Store) RecordSpawnError(runID, detail string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, ended_at, crashed, spawn_error) VALUES (?, ?, ?, 1, ?)`,
		runID, ts, ts, detail)
	if err != nil {
		return fmt.Errorf("record spawn error: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(pid, 0), started_at, ended_at, exit_code, signal, crashed, spawn_error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			ended    sql.NullString
			exitCode sql.NullInt64
			crashed  int
		)
		if err := rows.Scan(&r.ID, &r.PID, &started, &ended, &exitCode, &r.Signal, &crashed, &r.SpawnError); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended.Valid {
			t, _ := time.Parse(time.RFC3339Nano, ended.String)
			r.EndedAt = &t
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			r.ExitCode = &code
		}
		r.Crashed = crashed != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
