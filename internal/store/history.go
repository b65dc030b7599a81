package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/navcheck/internal/verify"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			scenario TEXT,
			base_url TEXT,
			driver TEXT,
			status TEXT,
			failed_index INTEGER,
			failure_kind TEXT,
			cause TEXT,
			snapshot TEXT,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT REFERENCES runs(id),
			idx INTEGER,
			kind TEXT,
			detail TEXT,
			status TEXT,
			duration_ms INTEGER,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS steps_run_id ON steps(run_id, idx);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

// SaveRun stores a finished run and its step records in one transaction.
func (h *HistoryStore) SaveRun(meta RunMeta, run *verify.Run) error {
	tx, err := h.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := StatusPassed
	var kind, cause, snap string
	if !run.Passed() {
		status = StatusFailed
		kind = string(run.Result.Cause.Kind)
		cause = run.Result.Cause.Error()
	}
	if run.Snapshot != nil {
		snap = run.Snapshot.String()
	}

	_, err = tx.Exec(`INSERT INTO runs
		(id, scenario, base_url, driver, status, failed_index, failure_kind, cause, snapshot, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, meta.Scenario, meta.BaseURL, meta.Driver, status, run.Result.FailedIndex,
		kind, cause, snap, formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, rec := range run.Records {
		stepStatus, stepErr := StatusPassed, ""
		if rec.Err != nil {
			stepStatus, stepErr = StatusFailed, rec.Err.Error()
		}
		_, err = tx.Exec(`INSERT INTO steps (run_id, idx, kind, detail, status, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, rec.Index, string(rec.Step.Kind), rec.Step.Detail(), stepStatus,
			rec.Duration.Milliseconds(), stepErr)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", rec.Index, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (h *HistoryStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, scenario, base_url, driver, status, failed_index, failure_kind, cause, snapshot, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`
	rows, err := h.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Scenario, &r.BaseURL, &r.Driver, &r.Status, &r.FailedIndex,
			&r.FailureKind, &r.Cause, &r.Snapshot, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetSteps returns the recorded steps of a run in execution order.
func (h *HistoryStore) GetSteps(runID string) ([]StepRow, error) {
	query := `SELECT idx, kind, detail, status, duration_ms, error FROM steps WHERE run_id = ? ORDER BY idx`
	rows, err := h.DB.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []StepRow
	for rows.Next() {
		var s StepRow
		var ms int64
		if err := rows.Scan(&s.Index, &s.Kind, &s.Detail, &s.Status, &ms, &s.Error); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// PruneBefore deletes runs that started before t and returns how many were removed.
func (h *HistoryStore) PruneBefore(t time.Time) (int64, error) {
	tx, err := h.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := formatTime(t)
	if _, err := tx.Exec(`DELETE FROM steps WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
