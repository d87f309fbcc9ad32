// Package sqlite persists health, history and cache state in a single
// SQLite database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/deusflow/newscrawl/internal/cache"
	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/history"
	"github.com/deusflow/newscrawl/internal/storage/sqlite/migrations"
)

// DBFile is the database file name inside the state directory.
const DBFile = "newscrawl.db"

// maxParams bounds the placeholders of one IN (...) lookup.
const maxParams = 500

// Store implements health.Store, history.Store and cache.Store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ health.Store  = (*Store)(nil)
	_ history.Store = (*Store)(nil)
	_ cache.Store   = (*Store)(nil)
)

// New opens (creating if needed) the database in dir and applies
// migrations.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dir, DBFile)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, s.now().UnixMilli()); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Health ====================

// LoadHealth implements health.Store.
func (s *Store) LoadHealth(ctx context.Context) (map[string]health.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source, attempts, failures, avg_yield, last_success FROM source_health")
	if err != nil {
		return nil, fmt.Errorf("querying health: %w", err)
	}
	defer rows.Close()

	out := make(map[string]health.Record)
	for rows.Next() {
		var (
			id   string
			r    health.Record
			last int64
		)
		if err := rows.Scan(&id, &r.Attempts, &r.Failures, &r.AvgYield, &last); err != nil {
			return nil, fmt.Errorf("scanning health: %w", err)
		}
		r.LastSuccess = fromMillis(last)
		out[id] = r
	}
	return out, rows.Err()
}

// SaveHealth implements health.Store. All records are written in one
// transaction.
func (s *Store) SaveHealth(ctx context.Context, records map[string]health.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO source_health (source, attempts, failures, avg_yield, last_success)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			attempts = excluded.attempts,
			failures = excluded.failures,
			avg_yield = excluded.avg_yield,
			last_success = excluded.last_success`)
	if err != nil {
		return fmt.Errorf("preparing health upsert: %w", err)
	}
	defer stmt.Close()

	for id, r := range records {
		if _, err := stmt.ExecContext(ctx, id, r.Attempts, r.Failures, r.AvgYield, toMillis(r.LastSuccess)); err != nil {
			return fmt.Errorf("saving health for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ==================== History ====================

// Seen implements history.Store.
func (s *Store) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for start := 0; start < len(ids); start += maxParams {
		chunk := ids[start:min(start+maxParams, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "SELECT identity FROM seen_history WHERE identity IN (" + placeholders(len(chunk)) + ")"
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying history: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning history: %w", err)
			}
			out[id] = true
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Record implements history.Store.
func (s *Store) Record(ctx context.Context, ids []string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO seen_history (identity, first_seen) VALUES (?, ?) ON CONFLICT(identity) DO NOTHING")
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer stmt.Close()

	ms := toMillis(at)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, ms); err != nil {
			return fmt.Errorf("recording history: %w", err)
		}
	}
	return tx.Commit()
}

// PurgeBefore implements history.Store.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM seen_history WHERE first_seen < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging history: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats implements history.Store.
func (s *Store) Stats(ctx context.Context) (history.Stats, error) {
	var (
		count  int
		oldest sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MIN(first_seen) FROM seen_history").Scan(&count, &oldest); err != nil {
		return history.Stats{}, fmt.Errorf("history stats: %w", err)
	}
	st := history.Stats{Records: count}
	if oldest.Valid {
		st.Oldest = fromMillis(oldest.Int64)
	}
	return st, nil
}

// Clear implements history.Store.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM seen_history"); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// ==================== Cache ====================

// ReadEntry implements cache.Store.
func (s *Store) ReadEntry(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM cache_entries WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	return data, nil
}

// WriteEntry implements cache.Store.
func (s *Store) WriteEntry(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, written_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, written_at = excluded.written_at`,
		key, data, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// ClearEntries implements cache.Store.
func (s *Store) ClearEntries(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
