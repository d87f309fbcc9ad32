package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newscrawl/internal/cache"
	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/storage/sqlite"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := sqlite.New(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveHealth(ctx, map[string]health.Record{"hn": {Attempts: 2, LastSuccess: t0}}))
	require.NoError(t, s.Close())

	s, err = sqlite.New(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]health.Record{"hn": {Attempts: 2, LastSuccess: t0}}, got)
}

func TestHealthUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHealth(ctx, map[string]health.Record{
		"a": {Attempts: 1, AvgYield: 3},
		"b": {Attempts: 1, Failures: 1},
	}))
	require.NoError(t, s.SaveHealth(ctx, map[string]health.Record{
		"a": {Attempts: 2, AvgYield: 4, LastSuccess: t0},
	}))

	got, err := s.LoadHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, health.Record{Attempts: 2, AvgYield: 4, LastSuccess: t0}, got["a"])
	assert.Equal(t, health.Record{Attempts: 1, Failures: 1}, got["b"])
}

func TestHistory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, []string{"a", "b"}, t0))
	require.NoError(t, s.Record(ctx, []string{"b", "c"}, t0.Add(time.Hour)))

	seen, err := s.Seen(ctx, []string{"a", "c", "z"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "c": true}, seen)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, t0, stats.Oldest)

	n, err := s.PurgeBefore(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
	assert.True(t, stats.Oldest.IsZero())
}

func TestSeenManyIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ids := make([]string, 1200)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%04d", i)
	}
	require.NoError(t, s.Record(ctx, ids[:700], t0))

	seen, err := s.Seen(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, seen, 700)
}

func TestCacheEntries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.ReadEntry(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, s.WriteEntry(ctx, "k", []byte("one")))
	require.NoError(t, s.WriteEntry(ctx, "k", []byte("two")))
	data, err := s.ReadEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, s.ClearEntries(ctx))
	_, err = s.ReadEntry(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
