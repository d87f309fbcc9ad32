// Package file persists health, history and cache state as JSON files in
// one directory. Every write goes to a temp file that is renamed into
// place, so readers never see a partial file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/deusflow/newscrawl/internal/cache"
	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/history"
)

const (
	healthFile  = "health.json"
	historyFile = "history.json"
	cacheDir    = "cache"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store is the file-backed implementation of health.Store, history.Store
// and cache.Store.
type Store struct {
	dir string

	healthMu  sync.Mutex
	historyMu sync.Mutex
	cacheMu   sync.Mutex
}

var (
	_ health.Store  = (*Store)(nil)
	_ history.Store = (*Store)(nil)
	_ cache.Store   = (*Store)(nil)
)

// New creates the directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, cacheDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// LoadHealth reads health.json. A missing file is empty state.
func (s *Store) LoadHealth(_ context.Context) (map[string]health.Record, error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	records := make(map[string]health.Record)
	if err := readJSON(filepath.Join(s.dir, healthFile), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveHealth replaces health.json.
func (s *Store) SaveHealth(_ context.Context, records map[string]health.Record) error {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	return writeJSON(filepath.Join(s.dir, healthFile), records)
}

// history.json maps identity to first-seen time.
func (s *Store) loadHistory() (map[string]time.Time, error) {
	seen := make(map[string]time.Time)
	if err := readJSON(filepath.Join(s.dir, historyFile), &seen); err != nil {
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", history.ErrCorrupt, err)
		}
		return nil, err
	}
	return seen, nil
}

// Seen implements history.Store.
func (s *Store) Seen(_ context.Context, ids []string) (map[string]bool, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	all, err := s.loadHistory()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, id := range ids {
		if _, ok := all[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Record implements history.Store.
func (s *Store) Record(_ context.Context, ids []string, at time.Time) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	all, err := s.loadHistory()
	if err != nil {
		return err
	}
	changed := false
	for _, id := range ids {
		if _, ok := all[id]; !ok {
			all[id] = at
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return writeJSON(filepath.Join(s.dir, historyFile), all)
}

// PurgeBefore implements history.Store.
func (s *Store) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	all, err := s.loadHistory()
	if err != nil {
		return 0, err
	}
	removed := 0
	for id, at := range all {
		if at.Before(cutoff) {
			delete(all, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, writeJSON(filepath.Join(s.dir, historyFile), all)
}

// Stats implements history.Store.
func (s *Store) Stats(_ context.Context) (history.Stats, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	all, err := s.loadHistory()
	if err != nil {
		return history.Stats{}, err
	}
	st := history.Stats{Records: len(all)}
	for _, at := range all {
		if st.Oldest.IsZero() || at.Before(st.Oldest) {
			st.Oldest = at
		}
	}
	return st, nil
}

// Clear implements history.Store.
func (s *Store) Clear(_ context.Context) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if err := os.Remove(filepath.Join(s.dir, historyFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (s *Store) cachePath(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(s.dir, cacheDir, key+".json"), nil
}

// ReadEntry implements cache.Store.
func (s *Store) ReadEntry(_ context.Context, key string) ([]byte, error) {
	path, err := s.cachePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return data, nil
}

// WriteEntry implements cache.Store.
func (s *Store) WriteEntry(_ context.Context, key string, data []byte) error {
	path, err := s.cachePath(key)
	if err != nil {
		return err
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return writeAtomic(path, data)
}

// ClearEntries implements cache.Store.
func (s *Store) ClearEntries(_ context.Context) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	dir := filepath.Join(s.dir, cacheDir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return os.MkdirAll(dir, 0o755)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
