// Package cache keeps complete crawl results for a short TTL so repeated
// invocations with the same configuration skip the network.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newscrawl/internal/crawl"
	"github.com/deusflow/newscrawl/internal/news"
)

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 5 * time.Minute

var (
	// ErrNotFound is returned by stores when a key has no entry.
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorrupt marks an entry that cannot be decoded.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// Store persists encoded entries. WriteEntry must replace an entry
// atomically: readers see either the old or the new bytes.
type Store interface {
	ReadEntry(ctx context.Context, key string) ([]byte, error)
	WriteEntry(ctx context.Context, key string, data []byte) error
	ClearEntries(ctx context.Context) error
}

// Entry is one stored crawl result.
type Entry struct {
	Key       string          `json:"key"`
	Articles  []news.Article  `json:"articles"`
	Outcomes  []crawl.Outcome `json:"outcomes"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
}

// Fresh reports whether the entry is still valid at now.
func (e Entry) Fresh(now time.Time) bool {
	return !now.Before(e.CreatedAt) && now.Sub(e.CreatedAt) <= e.TTL
}

// Cache is the freshness cache.
type Cache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// New creates a cache over store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// WithClock overrides the time source.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// TTL returns the configured lifetime of new entries.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the entry for key if it is within its TTL. Missing, expired
// and corrupt entries are all misses; corruption is logged, never returned.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := c.store.ReadEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache read failed", "key", short(key), "err", err)
		}
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key {
		c.logger.Warn("discarding corrupt cache entry", "key", short(key), "err", fmt.Errorf("%w: %v", ErrCorrupt, err))
		return Entry{}, false
	}
	if !e.Fresh(c.now()) {
		c.logger.Debug("cache entry expired", "key", short(key), "age", c.now().Sub(e.CreatedAt))
		return Entry{}, false
	}
	return e, true
}

// Put stores a result under key, overwriting whatever was there.
func (c *Cache) Put(ctx context.Context, key string, articles []news.Article, outcomes []crawl.Outcome) error {
	e := Entry{
		Key:       key,
		Articles:  articles,
		Outcomes:  outcomes,
		CreatedAt: c.now().UTC(),
		TTL:       c.ttl,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.store.WriteEntry(ctx, key, data); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.ClearEntries(ctx)
}

// Query is the part of a crawl configuration that determines its result.
type Query struct {
	Sources           []string
	Categories        []string
	ExcludeCategories []string
	Languages         []string
	ExcludeSources    []string
	Tags              []string
	ExcludeTags       []string
	Authors           []string
	ExcludeAuthors    []string
	Search            string
	Exclude           string
	Since             time.Duration
	MinRelevance      float64
	MinQuality        float64
	MinSources        int
	DedupThreshold    float64
	DedupDisabled     bool
	ProfilePath       string
}

// Key hashes the normalized query. List order and case do not matter.
func Key(q Query) string {
	parts := []string{
		"sources=" + normList(q.Sources, false),
		"categories=" + normList(q.Categories, true),
		"exclude=" + normList(q.ExcludeCategories, true),
		"languages=" + normList(q.Languages, true),
		"exclude_sources=" + normList(q.ExcludeSources, true),
		"tags=" + normList(q.Tags, true),
		"exclude_tags=" + normList(q.ExcludeTags, true),
		"authors=" + normList(q.Authors, true),
		"exclude_authors=" + normList(q.ExcludeAuthors, true),
		"search=" + strings.ToLower(strings.TrimSpace(q.Search)),
		"exclude_keyword=" + strings.ToLower(strings.TrimSpace(q.Exclude)),
		"since=" + q.Since.String(),
		"min_relevance=" + strconv.FormatFloat(q.MinRelevance, 'f', -1, 64),
		"min_quality=" + strconv.FormatFloat(q.MinQuality, 'f', -1, 64),
		"min_sources=" + strconv.Itoa(q.MinSources),
		"dedup=" + strconv.FormatFloat(q.DedupThreshold, 'f', -1, 64) + "/" + strconv.FormatBool(q.DedupDisabled),
		"profile=" + q.ProfilePath,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

func normList(in []string, fold bool) string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if fold {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
