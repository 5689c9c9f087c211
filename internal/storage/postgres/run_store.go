package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunRecord is the persisted summary of one crawl run.
type RunRecord struct {
	RunID      string
	Mode       string
	Result     string
	Checkpoint string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    crawler.Summary
}

// RunStore keeps one row per crawl run.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore constructs a RunStore over an existing pool.
func NewRunStore(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	result      TEXT NOT NULL,
	checkpoint  TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	faulted     INTEGER NOT NULL DEFAULT 0,
	cancelled   INTEGER NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// RecordRun inserts or updates the row for run.RunID.
func (s *RunStore) RecordRun(ctx context.Context, run RunRecord) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, mode, result, checkpoint, started_at, finished_at, total, succeeded, skipped, faulted, cancelled)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id) DO UPDATE SET
	result = EXCLUDED.result,
	checkpoint = EXCLUDED.checkpoint,
	finished_at = EXCLUDED.finished_at,
	total = EXCLUDED.total,
	succeeded = EXCLUDED.succeeded,
	skipped = EXCLUDED.skipped,
	faulted = EXCLUDED.faulted,
	cancelled = EXCLUDED.cancelled`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		run.Mode,
		run.Result,
		run.Checkpoint,
		run.StartedAt,
		run.FinishedAt,
		run.Summary.Total,
		run.Summary.Succeeded,
		run.Summary.Skipped,
		run.Summary.Faulted,
		run.Summary.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}
