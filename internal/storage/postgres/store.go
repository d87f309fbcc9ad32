// Package postgres persists source health and seen-history in PostgreSQL
// so several hosts can share them. The freshness cache stays local to
// each host and is not stored here.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS source_health (
	source       VARCHAR(100) PRIMARY KEY,
	attempts     INTEGER NOT NULL DEFAULT 0,
	failures     INTEGER NOT NULL DEFAULT 0,
	avg_yield    DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_success TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS seen_history (
	identity   VARCHAR(64) PRIMARY KEY,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_seen_history_first_seen ON seen_history(first_seen);
`

// Store implements health.Store and history.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ health.Store  = (*Store)(nil)
	_ history.Store = (*Store)(nil)
)

// Open connects with the lib/pq driver, pings and initializes the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := NewWithDB(db, logger)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("postgres store connected")
	return s, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadHealth implements health.Store.
func (s *Store) LoadHealth(ctx context.Context) (map[string]health.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, attempts, failures, avg_yield, last_success FROM source_health`)
	if err != nil {
		return nil, fmt.Errorf("failed to load health: %w", err)
	}
	defer rows.Close()

	out := make(map[string]health.Record)
	for rows.Next() {
		var (
			id   string
			r    health.Record
			last pq.NullTime
		)
		if err := rows.Scan(&id, &r.Attempts, &r.Failures, &r.AvgYield, &last); err != nil {
			return nil, fmt.Errorf("failed to scan health: %w", err)
		}
		if last.Valid {
			r.LastSuccess = last.Time.UTC()
		}
		out[id] = r
	}
	return out, rows.Err()
}

// SaveHealth implements health.Store in one transaction.
func (s *Store) SaveHealth(ctx context.Context, records map[string]health.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for id, r := range records {
		var last any
		if !r.LastSuccess.IsZero() {
			last = r.LastSuccess
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO source_health (source, attempts, failures, avg_yield, last_success)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (source) DO UPDATE SET
				attempts = EXCLUDED.attempts,
				failures = EXCLUDED.failures,
				avg_yield = EXCLUDED.avg_yield,
				last_success = EXCLUDED.last_success`,
			id, r.Attempts, r.Failures, r.AvgYield, last); err != nil {
			return fmt.Errorf("failed to save health for %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit health: %w", err)
	}
	return nil
}

// Seen implements history.Store.
func (s *Store) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity FROM seen_history WHERE identity = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Record implements history.Store. Existing first-seen times are kept.
func (s *Store) Record(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_history (identity, first_seen)
		SELECT UNNEST($1::text[]), $2
		ON CONFLICT (identity) DO NOTHING`,
		pq.StringArray(ids), at)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// PurgeBefore implements history.Store.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_history WHERE first_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("purged history records", "removed", n)
	}
	return int(n), nil
}

// Stats implements history.Store.
func (s *Store) Stats(ctx context.Context) (history.Stats, error) {
	var (
		count  int
		oldest pq.NullTime
	)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(first_seen) FROM seen_history`).Scan(&count, &oldest); err != nil {
		return history.Stats{}, fmt.Errorf("failed to read history stats: %w", err)
	}
	st := history.Stats{Records: count}
	if oldest.Valid {
		st.Oldest = oldest.Time.UTC()
	}
	return st, nil
}

// Clear implements history.Store.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE seen_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
