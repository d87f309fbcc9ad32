// Package app wires the crawl pipeline: cache lookup, crawl, filtering,
// relevance, deduplication, ranking and seen-history.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newscrawl/internal/cache"
	"github.com/deusflow/newscrawl/internal/config"
	"github.com/deusflow/newscrawl/internal/crawl"
	"github.com/deusflow/newscrawl/internal/dedup"
	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/history"
	"github.com/deusflow/newscrawl/internal/metrics"
	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/profile"
	"github.com/deusflow/newscrawl/internal/ratelimit"
	"github.com/deusflow/newscrawl/internal/retry"
	"github.com/deusflow/newscrawl/internal/scoring"
	"github.com/deusflow/newscrawl/internal/source"
)

var (
	// ErrNoSources is returned when a request selects no enabled source.
	ErrNoSources = errors.New("no sources selected")
	// ErrUnknownSource is returned when a request names a source that is
	// not configured.
	ErrUnknownSource = errors.New("unknown source")
)

// Request selects sources and filters for one run.
type Request struct {
	Sources           []string      `json:"sources,omitempty"`
	Categories        []string      `json:"categories,omitempty"`
	ExcludeCategories []string      `json:"exclude_categories,omitempty"`
	Languages         []string      `json:"languages,omitempty"`
	ExcludeSources    []string      `json:"exclude_sources,omitempty"`
	Tags              []string      `json:"tags,omitempty"`
	ExcludeTags       []string      `json:"exclude_tags,omitempty"`
	Authors           []string      `json:"authors,omitempty"`
	ExcludeAuthors    []string      `json:"exclude_authors,omitempty"`
	Search            string        `json:"search,omitempty"`
	Exclude           string        `json:"exclude,omitempty"`
	Since             time.Duration `json:"since,omitempty"`
	MinRelevance      float64       `json:"min_relevance,omitempty"`
	MinQuality        float64       `json:"min_quality,omitempty"`
	MinSources        int           `json:"min_sources,omitempty"`
	NewOnly           bool          `json:"new_only,omitempty"`
	NoCache           bool          `json:"no_cache,omitempty"`
	Limit             int           `json:"limit,omitempty"`
}

// Stats summarizes a run.
type Stats struct {
	Raw           int           `json:"raw"`
	Filtered      int           `json:"filtered"`
	Deduped       int           `json:"deduped"`
	Merged        int           `json:"merged"`
	Exact         int           `json:"exact"`
	Fingerprint   int           `json:"fingerprint"`
	Fuzzy         int           `json:"fuzzy"`
	SeenFiltered  int           `json:"seen_filtered"`
	SourcesOK     int           `json:"sources_ok"`
	SourcesFailed int           `json:"sources_failed"`
	Elapsed       time.Duration `json:"elapsed"`
	CacheKey      string        `json:"cache_key"`
}

// Report is the result handed to renderers.
type Report struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	FromCache   bool            `json:"from_cache"`
	Articles    []news.Article  `json:"articles"`
	Outcomes    []crawl.Outcome `json:"outcomes"`
	Stats       Stats           `json:"stats"`
	AllFailed   bool            `json:"all_failed,omitempty"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
}

// Options carries the collaborators of an Aggregator. Everything except
// Adapters may be left nil: Tracker defaults to an in-memory tracker,
// Limiter to a per-domain limiter built from the config, and a nil Cache,
// History, Profile or Metrics disables that stage.
type Options struct {
	Adapters []source.Adapter
	Tracker  *health.Tracker
	Limiter  crawl.Limiter
	Cache    *cache.Cache
	History  *history.History
	Profile  *profile.Profile
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Aggregator runs the pipeline. It is safe to call Run repeatedly, but not
// concurrently.
type Aggregator struct {
	cfg      *config.Config
	adapters []source.Adapter
	orch     *crawl.Orchestrator
	scorer   *scoring.Scorer
	dedup    *dedup.Engine
	tracker  *health.Tracker
	cache    *cache.Cache
	history  *history.History
	profile  *profile.Profile
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New builds an aggregator from the configuration and collaborators.
func New(cfg *config.Config, opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = health.NewTracker(nil, logger)
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{
			PerSecond: cfg.Crawl.Rate.PerSecond,
			Burst:     cfg.Crawl.Rate.Burst,
		})
	}

	orch := crawl.New(crawl.Config{
		Concurrency:    cfg.Crawl.Concurrency,
		AdapterTimeout: cfg.Crawl.AdapterTimeout,
		Deadline:       cfg.Crawl.Deadline,
		Retry: retry.RetryConfig{
			MaxAttempts: cfg.Crawl.Retry.MaxAttempts,
			BaseDelay:   cfg.Crawl.Retry.BaseDelay,
			Jitter:      cfg.Crawl.Retry.Jitter,
			MaxDelay:    cfg.Crawl.Retry.MaxDelay,
		},
	}, limiter, tracker, logger).WithClock(now, opts.Sleep, nil)
	if opts.Metrics != nil {
		orch.WithObserver(opts.Metrics)
	}

	scorer := scoring.NewScorer(cfg.Profiles(), tracker, scoring.Config{
		DefaultQuality:  cfg.Scoring.DefaultQuality,
		RelevanceWeight: cfg.Scoring.RelevanceWeight,
	})

	engine := dedup.New(dedup.Config{
		Threshold: cfg.Dedup.Threshold,
		Disabled:  cfg.Dedup.Disabled,
	}, scorer, logger).WithClock(now)

	return &Aggregator{
		cfg:      cfg,
		adapters: opts.Adapters,
		orch:     orch,
		scorer:   scorer,
		dedup:    engine,
		tracker:  tracker,
		cache:    opts.Cache,
		history:  opts.History,
		profile:  opts.Profile,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      now,
	}
}

// Sources describes the configured adapters.
func (a *Aggregator) Sources() []source.Info {
	out := make([]source.Info, 0, len(a.adapters))
	for _, ad := range a.adapters {
		out = append(out, source.Describe(ad))
	}
	return out
}

// Health returns the per-source health summary.
func (a *Aggregator) Health() []health.Status {
	return a.tracker.Summary()
}

// Run executes one pipeline pass. Source failures never make it fail: if
// every source fails the report carries AllFailed and diagnostics instead.
func (a *Aggregator) Run(ctx context.Context, req Request) (*Report, error) {
	start := a.now()

	adapters, err := a.selectAdapters(req.Sources)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: start.UTC(),
	}
	key := cache.Key(a.query(req, adapters))
	report.Stats.CacheKey = key

	var ranked []news.Article
	if a.cache != nil && !req.NoCache {
		entry, ok := a.cache.Get(ctx, key)
		if a.metrics != nil {
			a.metrics.ObserveCache(ok)
		}
		if ok {
			report.FromCache = true
			ranked = entry.Articles
			report.Outcomes = entry.Outcomes
			report.Stats.Deduped = len(ranked)
			a.logger.Info("serving cached crawl", "articles", len(ranked), "age", start.Sub(entry.CreatedAt).Round(time.Second))
		}
	}

	if !report.FromCache {
		ranked = a.crawl(ctx, adapters, req, report)
		if report.Stats.SourcesOK > 0 && a.cache != nil {
			if err := a.cache.Put(ctx, key, ranked, report.Outcomes); err != nil {
				a.logger.Warn("failed to store crawl in cache", "err", err)
			}
		}
	}
	report.Stats.SourcesOK, report.Stats.SourcesFailed = countOutcomes(report.Outcomes)

	articles := a.applyHistory(ctx, ranked, req, report)
	if req.Limit > 0 && len(articles) > req.Limit {
		articles = articles[:req.Limit]
	}
	if articles == nil {
		articles = []news.Article{}
	}
	report.Articles = articles
	report.Stats.Elapsed = a.now().Sub(start)

	if a.metrics != nil {
		a.metrics.RecordRun(len(articles), report.Stats.Elapsed)
		if report.AllFailed {
			a.metrics.SetError("all sources failed")
		}
	}
	return report, nil
}

func (a *Aggregator) crawl(ctx context.Context, adapters []source.Adapter, req Request, report *Report) []news.Article {
	res := a.orch.Run(ctx, adapters)
	report.Outcomes = res.Outcomes
	report.Stats.SourcesOK, report.Stats.SourcesFailed = countOutcomes(res.Outcomes)

	if err := a.tracker.Flush(ctx); err != nil {
		a.logger.Warn("failed to persist source health", "err", err)
	}

	if report.Stats.SourcesOK == 0 && len(res.Articles) == 0 {
		report.AllFailed = true
		report.Diagnostics = diagnose(res)
		a.logger.Error("every source failed", "sources", len(res.Outcomes))
		return nil
	}

	report.Stats.Raw = len(res.Articles)
	articles := Filter(res.Articles, req, a.now())
	report.Stats.Filtered = report.Stats.Raw - len(articles)

	if a.profile != nil {
		articles = a.profile.Annotate(articles)
	}
	if req.MinRelevance > 0 {
		articles = MinRelevance(articles, req.MinRelevance)
		report.Stats.Filtered = report.Stats.Raw - len(articles)
	}

	deduped, ds := a.dedup.Run(articles)
	if a.metrics != nil {
		a.metrics.ObserveDedup(ds.Exact, ds.Fingerprint, ds.Fuzzy)
	}
	report.Stats.Deduped = ds.Output
	report.Stats.Merged = ds.Merged
	report.Stats.Exact = ds.Exact
	report.Stats.Fingerprint = ds.Fingerprint
	report.Stats.Fuzzy = ds.Fuzzy

	if a.cfg.Dedup.Disabled {
		deduped = a.scorer.ScoreAll(deduped, a.now())
	}

	// quality and coverage are only known once articles are scored and merged
	before := len(deduped)
	if req.MinQuality > 0 {
		deduped = MinQuality(deduped, req.MinQuality)
	}
	if req.MinSources > 1 {
		deduped = MinSources(deduped, req.MinSources)
	}
	report.Stats.Filtered += before - len(deduped)

	Rank(deduped)
	return deduped
}

// applyHistory purges expired history once per run and, for new-only
// requests, drops articles that were already seen. History failures are
// logged and the articles pass through unfiltered.
func (a *Aggregator) applyHistory(ctx context.Context, articles []news.Article, req Request, report *Report) []news.Article {
	if a.history == nil {
		return articles
	}
	if _, err := a.history.PurgeExpired(ctx); err != nil {
		a.logger.Warn("failed to purge history", "err", err)
	}
	if !req.NewOnly {
		return articles
	}

	fresh, err := a.history.FilterNew(ctx, articles)
	if err != nil {
		a.logger.Warn("history unavailable, returning unfiltered articles", "err", err)
		return articles
	}
	report.Stats.SeenFiltered = len(articles) - len(fresh)
	if a.metrics != nil {
		a.metrics.ObserveHistoryFiltered(report.Stats.SeenFiltered)
	}
	return fresh
}

func (a *Aggregator) selectAdapters(ids []string) ([]source.Adapter, error) {
	if len(ids) == 0 {
		if len(a.adapters) == 0 {
			return nil, ErrNoSources
		}
		return a.adapters, nil
	}

	byID := make(map[string]source.Adapter, len(a.adapters))
	for _, ad := range a.adapters {
		byID[ad.ID()] = ad
	}
	var out []source.Adapter
	picked := make(map[string]bool, len(ids))
	for _, id := range ids {
		ad, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
		}
		if picked[id] {
			continue
		}
		picked[id] = true
		out = append(out, ad)
	}
	return out, nil
}

func (a *Aggregator) query(req Request, adapters []source.Adapter) cache.Query {
	ids := make([]string, 0, len(adapters))
	for _, ad := range adapters {
		ids = append(ids, ad.ID())
	}
	return cache.Query{
		Sources:           ids,
		Categories:        req.Categories,
		ExcludeCategories: req.ExcludeCategories,
		Languages:         req.Languages,
		ExcludeSources:    req.ExcludeSources,
		Tags:              req.Tags,
		ExcludeTags:       req.ExcludeTags,
		Authors:           req.Authors,
		ExcludeAuthors:    req.ExcludeAuthors,
		Search:            req.Search,
		Exclude:           req.Exclude,
		Since:             req.Since,
		MinRelevance:      req.MinRelevance,
		MinQuality:        req.MinQuality,
		MinSources:        req.MinSources,
		DedupThreshold:    a.dedup.Threshold(),
		DedupDisabled:     a.cfg.Dedup.Disabled,
		ProfilePath:       a.cfg.Profile.Path,
	}
}

// Rank sorts articles by score, then newest first, then canonical URL.
func Rank(articles []news.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		x, y := articles[i], articles[j]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if !x.Published.Equal(y.Published) {
			return x.Published.After(y.Published)
		}
		return x.CanonicalURL < y.CanonicalURL
	})
}

func countOutcomes(outcomes []crawl.Outcome) (ok, failed int) {
	for _, o := range outcomes {
		if o.Success {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

func diagnose(res crawl.Result) []string {
	out := make([]string, 0, len(res.Outcomes)+1)
	if len(res.Outcomes) == 0 {
		return append(out, "no sources were crawled")
	}
	for _, o := range res.Outcomes {
		out = append(out, fmt.Sprintf("%s: %s after %d attempt(s): %s", o.Source, o.Kind, o.Attempts, o.Error))
	}
	if res.DeadlineExceeded {
		out = append(out, "crawl deadline exceeded")
	}
	return out
}
