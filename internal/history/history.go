// Package history persists run reports into a SQLite database under the
// engine's reserved directory, so past invocations can be inspected with
// `omochamake history`.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sugi-a/omochamake/pkg/engine"
)

// Run is one recorded engine invocation.
type Run struct {
	ID         int64
	StartedAt  string
	FinishedAt string
	DryRun     bool
	OK         bool
}

// RuleOutcome is one rule's terminal state within a recorded run.
type RuleOutcome struct {
	RunID  int64
	Rule   string
	Status string
	Error  string
}

// Store wraps the SQLite history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path and runs migrations.
// The parent directory is created if it does not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		// Fresh database.
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unsupported history schema version %d", v)
	}
	return nil
}

// RecordRun persists one report with its per-rule terminal states.
// Runs inside a transaction so a run row never exists without its rules.
func (s *Store) RecordRun(rep *engine.Report, dryRun bool, started, finished time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		"INSERT INTO runs(started_at, finished_at, dry_run, ok) VALUES(?,?,?,?)",
		started.UTC().Format(time.RFC3339), finished.UTC().Format(time.RFC3339),
		boolInt(dryRun), boolInt(rep.OK()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, rr := range rep.Results {
		errText := ""
		if rr.Err != nil {
			errText = rr.Err.Error()
		}
		if _, err := tx.Exec(
			"INSERT INTO run_rules(run_id, rule, status, error) VALUES(?,?,?,?)",
			runID, rr.Rule.Name, rr.Status.String(), errText,
		); err != nil {
			return 0, fmt.Errorf("insert rule outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		"SELECT id, started_at, finished_at, dry_run, ok FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var dry, ok int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &dry, &ok); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.DryRun = dry != 0
		r.OK = ok != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RuleOutcomes returns the per-rule states of one run, insertion order.
func (s *Store) RuleOutcomes(runID int64) ([]RuleOutcome, error) {
	rows, err := s.db.Query(
		"SELECT run_id, rule, status, error FROM run_rules WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("query rule outcomes: %w", err)
	}
	defer rows.Close()

	var out []RuleOutcome
	for rows.Next() {
		var o RuleOutcome
		if err := rows.Scan(&o.RunID, &o.Rule, &o.Status, &o.Error); err != nil {
			return nil, fmt.Errorf("scan rule outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
