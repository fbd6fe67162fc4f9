package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- Run ledger ---

// runTimeLayout is fixed-width so started_at sorts lexically.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z"

// RecordRun inserts one finished puller or uploader invocation.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, started_at, finished_at, status, object, row_count, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.StartedAt.UTC().Format(runTimeLayout), finished.UTC().Format(runTimeLayout),
		r.Status, r.Object, r.Rows, r.Detail,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty kind lists all.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	const cols = `SELECT id, kind, started_at, finished_at, status, object, row_count, detail FROM runs`
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY started_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE kind = ? ORDER BY started_at DESC LIMIT ?`, kind, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Kind, &started, &finished, &r.Status, &r.Object, &r.Rows, &r.Detail); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
