// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for verdict rows.
type Config struct {
	DSN             string
	Table           string
	RunsTable       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// VerdictStore upserts extracted verdicts, one transaction per record.
type VerdictStore struct {
	pool      txPool
	table     string
	upsertSQL string
}

var _ crawler.VerdictStore = (*VerdictStore)(nil)

// Connect opens a pgx pool from cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NewVerdictStore constructs a store over an existing pool.
func NewVerdictStore(pool txPool, table string) (*VerdictStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "verdicts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &VerdictStore{pool: pool, table: table, upsertSQL: upsertVerdictSQL(table)}, nil
}

// Close releases the underlying pool resources.
func (s *VerdictStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the verdict table when it does not exist.
func (s *VerdictStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createVerdictTableSQL(s.table)); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// StoreRecord upserts every verdict of record inside one transaction. Full
// text and its hash are only written when opts.FullText is set; otherwise
// previously captured text is kept.
func (s *VerdictStore) StoreRecord(ctx context.Context, record crawler.Record, opts crawler.StoreOptions) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: verdict store is not configured", crawler.ErrPersistence)
	}
	if len(record.Verdicts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", crawler.ErrPersistence, err)
	}
	for _, v := range record.Verdicts {
		args := []any{
			v.Reference,
			record.UnitID,
			v.CaseNumber,
			v.Court,
			v.DecisionDate,
			v.Title,
			v.URL,
			v.Technical,
			textOrNull(opts.FullText, v.FullText),
			textOrNull(opts.FullText, v.ContentHash),
			record.SourceURL,
		}
		if _, err := tx.Exec(ctx, s.upsertSQL, args...); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return fmt.Errorf("%w: upsert verdict %s: %w", crawler.ErrPersistence, v.Reference, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit unit %s: %w", crawler.ErrPersistence, record.UnitID, err)
	}
	return nil
}

func textOrNull(keep bool, s string) any {
	if !keep || s == "" {
		return nil
	}
	return s
}

func upsertVerdictSQL(table string) string {
	return fmt.Sprintf(`
INSERT INTO %[1]s (
	reference,
	unit_id,
	case_number,
	court,
	decision_date,
	title,
	url,
	technical,
	full_text,
	content_hash,
	source_url,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now()
)
ON CONFLICT (reference) DO UPDATE SET
	unit_id = EXCLUDED.unit_id,
	case_number = EXCLUDED.case_number,
	court = EXCLUDED.court,
	decision_date = EXCLUDED.decision_date,
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	technical = EXCLUDED.technical,
	full_text = COALESCE(EXCLUDED.full_text, %[1]s.full_text),
	content_hash = COALESCE(EXCLUDED.content_hash, %[1]s.content_hash),
	source_url = EXCLUDED.source_url,
	updated_at = now()`, table)
}

func createVerdictTableSQL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	reference     TEXT PRIMARY KEY,
	unit_id       TEXT NOT NULL,
	case_number   TEXT NOT NULL DEFAULT '',
	court         TEXT NOT NULL DEFAULT '',
	decision_date DATE NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	technical     BOOLEAN NOT NULL DEFAULT FALSE,
	full_text     TEXT,
	content_hash  TEXT,
	source_url    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_decision_date_idx ON %[1]s (decision_date)`, table)
}
