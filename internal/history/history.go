// Package history remembers which stories were already emitted so later
// runs can show only new ones.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newscrawl/internal/news"
)

// DefaultRetention is how long a seen identity is remembered.
const DefaultRetention = 24 * time.Hour

// ErrCorrupt is returned by stores whose persisted history is unreadable.
var ErrCorrupt = errors.New("history corrupt")

// Store persists identities with their first-seen time.
type Store interface {
	// Seen returns the subset of ids already recorded.
	Seen(ctx context.Context, ids []string) (map[string]bool, error)
	// Record stores ids with first-seen time at, keeping existing times.
	Record(ctx context.Context, ids []string, at time.Time) error
	// PurgeBefore deletes records first seen before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
}

// Stats summarises the store.
type Stats struct {
	Records int       `json:"records"`
	Oldest  time.Time `json:"oldest,omitempty"`
}

// History filters article batches down to unseen stories.
type History struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a history over store. A non-positive retention uses
// DefaultRetention.
func New(store Store, retention time.Duration, logger *slog.Logger) *History {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{store: store, retention: retention, now: time.Now, logger: logger}
}

// WithClock overrides the time source.
func (h *History) WithClock(now func() time.Time) *History {
	h.now = now
	return h
}

// FilterNew returns the articles none of whose identities (canonical URL
// key, title fingerprint) were recorded before, then records every
// identity of the batch. Order is preserved. Within one batch the first
// article carrying an identity wins.
func (h *History) FilterNew(ctx context.Context, articles []news.Article) ([]news.Article, error) {
	if len(articles) == 0 {
		return articles, nil
	}

	idsPer := make([][]string, len(articles))
	var all []string
	for i, a := range articles {
		idsPer[i] = a.Identities()
		all = append(all, idsPer[i]...)
	}

	seen, err := h.store.Seen(ctx, all)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, fmt.Errorf("look up history: %w", err)
		}
		h.logger.Warn("discarding corrupt history", "err", err)
		if err := h.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("reset corrupt history: %w", err)
		}
		seen = map[string]bool{}
	}

	batch := make(map[string]bool, len(all))
	fresh := make([]news.Article, 0, len(articles))
	var unseen []string
	for i, a := range articles {
		old := false
		for _, id := range idsPer[i] {
			if seen[id] || batch[id] {
				old = true
				break
			}
		}
		for _, id := range idsPer[i] {
			if !seen[id] && !batch[id] {
				unseen = append(unseen, id)
			}
			batch[id] = true
		}
		if !old {
			fresh = append(fresh, a)
		}
	}

	if len(unseen) > 0 {
		if err := h.store.Record(ctx, unseen, h.now().UTC()); err != nil {
			return nil, fmt.Errorf("record history: %w", err)
		}
	}
	return fresh, nil
}

// PurgeExpired drops records older than the retention window.
func (h *History) PurgeExpired(ctx context.Context) (int, error) {
	n, err := h.store.PurgeBefore(ctx, h.now().UTC().Add(-h.retention))
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			h.logger.Warn("discarding corrupt history", "err", err)
			return 0, h.store.Clear(ctx)
		}
		return 0, fmt.Errorf("purge history: %w", err)
	}
	if n > 0 {
		h.logger.Debug("purged expired history", "removed", n)
	}
	return n, nil
}

// Stats returns the number of records and the oldest first-seen time.
func (h *History) Stats(ctx context.Context) (Stats, error) {
	s, err := h.store.Stats(ctx)
	if errors.Is(err, ErrCorrupt) {
		return Stats{}, nil
	}
	return s, err
}

// Clear forgets everything.
func (h *History) Clear(ctx context.Context) error {
	return h.store.Clear(ctx)
}
