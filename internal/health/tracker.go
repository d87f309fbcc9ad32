// Package health tracks per-source crawl reliability across runs.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Record is the persisted reliability state of one source.
type Record struct {
	Attempts    int       `json:"attempts"`
	Failures    int       `json:"failures"`
	AvgYield    float64   `json:"avg_yield"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// SuccessRate is (attempts - failures) / attempts, or 1.0 before the first
// attempt.
func (r Record) SuccessRate() float64 {
	if r.Attempts == 0 {
		return 1.0
	}
	return float64(r.Attempts-r.Failures) / float64(r.Attempts)
}

// Store persists health records keyed by source id.
type Store interface {
	LoadHealth(ctx context.Context) (map[string]Record, error)
	SaveHealth(ctx context.Context, records map[string]Record) error
}

// Status is a Record with its derived success rate, for diagnostics.
type Status struct {
	Source string `json:"source"`
	Record
	SuccessRate float64 `json:"success_rate"`
}

// Tracker holds health records in memory for the duration of a run.
// Records are loaded once and written back by Flush; they are never reset.
// gen counts recorded outcomes and saved is the gen last persisted, so an
// outcome recorded while a save is in flight stays pending.
type Tracker struct {
	mu      sync.Mutex
	store   Store
	records map[string]Record
	gen     uint64
	saved   uint64
	now     func() time.Time
	logger  *slog.Logger
}

// NewTracker creates a tracker. store may be nil for a purely in-memory tracker.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:   store,
		records: make(map[string]Record),
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock overrides the time source used for last-success timestamps.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Load replaces the in-memory state with what the store holds. Unreadable
// state is discarded and the tracker starts empty.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	records, err := t.store.LoadHealth(ctx)
	if err != nil {
		t.logger.Warn("discarding unreadable source health", "err", err)
		records = nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]Record, len(records))
	for id, r := range records {
		t.records[id] = r
	}
	t.saved = t.gen
	return nil
}

// RecordOutcome registers one terminal crawl outcome for a source.
func (t *Tracker) RecordOutcome(source string, success bool, articleCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.records[source]
	r.Attempts++
	if !success {
		r.Failures++
	} else {
		successes := r.Attempts - r.Failures
		r.AvgYield += (float64(articleCount) - r.AvgYield) / float64(successes)
		r.LastSuccess = t.now().UTC()
	}
	t.records[source] = r
	t.gen++
}

// SuccessRate returns the success ratio for a source (1.0 if unknown).
func (t *Tracker) SuccessRate(source string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records[source].SuccessRate()
}

// Get returns the record for a source.
func (t *Tracker) Get(source string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[source]
	return r, ok
}

// Summary returns every known source, sorted by id.
func (t *Tracker) Summary() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Status, 0, len(t.records))
	for id, r := range t.records {
		out = append(out, Status{Source: id, Record: r, SuccessRate: r.SuccessRate()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Flush writes the records back to the store if anything changed.
func (t *Tracker) Flush(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	t.mu.Lock()
	if t.gen == t.saved {
		t.mu.Unlock()
		return nil
	}
	gen := t.gen
	snapshot := make(map[string]Record, len(t.records))
	for id, r := range t.records {
		snapshot[id] = r
	}
	t.mu.Unlock()

	if err := t.store.SaveHealth(ctx, snapshot); err != nil {
		return fmt.Errorf("save source health: %w", err)
	}

	t.mu.Lock()
	if gen > t.saved {
		t.saved = gen
	}
	t.mu.Unlock()
	return nil
}
