package health_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newscrawl/internal/health"
)

type memStore struct {
	records map[string]health.Record
	loadErr error
	saves   int
	onSave  func()
}

func (m *memStore) LoadHealth(context.Context) (map[string]health.Record, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.records, nil
}

func (m *memStore) SaveHealth(_ context.Context, records map[string]health.Record) error {
	m.records = records
	m.saves++
	if m.onSave != nil {
		m.onSave()
	}
	return nil
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 1.0, health.Record{}.SuccessRate())
	assert.InDelta(t, 0.4, health.Record{Attempts: 5, Failures: 3}.SuccessRate(), 1e-9)
}

func TestRecordOutcome(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := health.NewTracker(nil, nil).WithClock(func() time.Time { return at })

	tr.RecordOutcome("bbc", true, 10)
	tr.RecordOutcome("bbc", false, 0)
	tr.RecordOutcome("bbc", true, 20)

	r, ok := tr.Get("bbc")
	require.True(t, ok)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 1, r.Failures)
	assert.InDelta(t, 15.0, r.AvgYield, 1e-9)
	assert.Equal(t, at, r.LastSuccess)
	assert.InDelta(t, 2.0/3.0, tr.SuccessRate("bbc"), 1e-9)
	assert.Equal(t, 1.0, tr.SuccessRate("unknown"))
}

func TestFailureDoesNotTouchLastSuccess(t *testing.T) {
	tr := health.NewTracker(nil, nil)
	tr.RecordOutcome("x", false, 0)

	r, _ := tr.Get("x")
	assert.True(t, r.LastSuccess.IsZero())
	assert.Zero(t, r.AvgYield)
}

func TestConcurrentOutcomesForDifferentSources(t *testing.T) {
	tr := health.NewTracker(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); tr.RecordOutcome("a", true, 1) }()
		go func() { defer wg.Done(); tr.RecordOutcome("b", false, 0) }()
	}
	wg.Wait()

	a, _ := tr.Get("a")
	b, _ := tr.Get("b")
	assert.Equal(t, 50, a.Attempts)
	assert.Equal(t, 0, a.Failures)
	assert.Equal(t, 50, b.Attempts)
	assert.Equal(t, 50, b.Failures)
}

func TestLoadAndFlush(t *testing.T) {
	store := &memStore{records: map[string]health.Record{"a": {Attempts: 4, Failures: 1}}}
	tr := health.NewTracker(store, nil)
	require.NoError(t, tr.Load(context.Background()))

	// nothing changed yet
	require.NoError(t, tr.Flush(context.Background()))
	assert.Zero(t, store.saves)

	tr.RecordOutcome("a", false, 0)
	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 5, store.records["a"].Attempts)
	assert.Equal(t, 2, store.records["a"].Failures)
}

func TestOutcomeDuringFlushStaysPending(t *testing.T) {
	store := &memStore{}
	tr := health.NewTracker(store, nil)
	tr.RecordOutcome("a", true, 3)

	store.onSave = func() {
		store.onSave = nil
		tr.RecordOutcome("b", false, 0)
	}
	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, 1, store.saves)
	assert.NotContains(t, store.records, "b")

	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, 1, store.records["b"].Failures)

	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, 2, store.saves)
}

func TestLoadCorruptStartsEmpty(t *testing.T) {
	store := &memStore{loadErr: errors.New("bad json")}
	tr := health.NewTracker(store, nil)

	require.NoError(t, tr.Load(context.Background()))
	assert.Empty(t, tr.Summary())
}

func TestSummarySorted(t *testing.T) {
	tr := health.NewTracker(nil, nil)
	tr.RecordOutcome("zeta", true, 1)
	tr.RecordOutcome("alpha", false, 0)

	s := tr.Summary()
	require.Len(t, s, 2)
	assert.Equal(t, "alpha", s[0].Source)
	assert.Equal(t, 0.0, s[0].SuccessRate)
	assert.Equal(t, "zeta", s[1].Source)
}
