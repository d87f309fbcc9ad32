// Package dedup collapses reports of the same story into one article.
//
// Articles are clustered with union-find. Two articles join a cluster if
// they match on any tier, checked in this order:
//
//  1. exact: same canonical URL or same content hash (title + summary)
//  2. fingerprint: same normalized title within the same category
//  3. fuzzy: normalized Levenshtein similarity of normalized titles at or
//     above the threshold
//
// Within a cluster the highest scoring article survives and records every
// contributing source. Input is put into a canonical order first, so the
// output does not depend on arrival order.
package dedup

import (
	"cmp"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/deusflow/newscrawl/internal/news"
)

// DefaultThreshold is the fuzzy tier similarity cut-off.
const DefaultThreshold = 0.75

// Tier names a matching stage.
type Tier int

const (
	TierExact Tier = iota
	TierFingerprint
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierFingerprint:
		return "fingerprint"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// Scorer recomputes the derived scores of an article.
type Scorer interface {
	Score(a news.Article, now time.Time) news.Article
}

// Config controls the engine.
type Config struct {
	// Threshold is the fuzzy similarity cut-off in (0,1]. Zero means
	// DefaultThreshold.
	Threshold float64
	// Disabled returns the input unchanged.
	Disabled bool
}

// Stats reports what a run merged.
type Stats struct {
	Input       int `json:"input"`
	Output      int `json:"output"`
	Merged      int `json:"merged"`
	Exact       int `json:"exact"`
	Fingerprint int `json:"fingerprint"`
	Fuzzy       int `json:"fuzzy"`
}

// ByTier returns the merge count for one tier.
func (s Stats) ByTier(t Tier) int {
	switch t {
	case TierExact:
		return s.Exact
	case TierFingerprint:
		return s.Fingerprint
	case TierFuzzy:
		return s.Fuzzy
	}
	return 0
}

func (s *Stats) add(t Tier) {
	switch t {
	case TierExact:
		s.Exact++
	case TierFingerprint:
		s.Fingerprint++
	case TierFuzzy:
		s.Fuzzy++
	}
}

// Engine deduplicates article batches. It holds no state between runs.
type Engine struct {
	cfg    Config
	scorer Scorer
	now    func() time.Time
	logger *slog.Logger
}

// New creates an engine. A nil scorer keeps the scores already on the
// articles.
func New(cfg Config, scorer Scorer, logger *slog.Logger) *Engine {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, scorer: scorer, now: time.Now, logger: logger}
}

// WithClock sets the time used for scoring.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Threshold returns the effective fuzzy threshold.
func (e *Engine) Threshold() float64 { return e.cfg.Threshold }

type entry struct {
	article news.Article
	urlKey  string
	content string
	finger  string
	title   []rune
}

// Run deduplicates articles and returns one article per cluster, in
// canonical order, along with merge statistics.
func (e *Engine) Run(articles []news.Article) ([]news.Article, Stats) {
	stats := Stats{Input: len(articles)}
	if e.cfg.Disabled {
		out := make([]news.Article, len(articles))
		copy(out, articles)
		stats.Output = len(out)
		return out, stats
	}
	if len(articles) == 0 {
		return nil, stats
	}

	now := e.now()
	entries := make([]entry, len(articles))
	for i, a := range articles {
		a = a.Prepare(a.SourceID, a.Category)
		if e.scorer != nil {
			a = e.scorer.Score(a, now)
		}
		entries[i] = entry{
			article: a,
			urlKey:  a.URLKey(),
			content: a.ContentHash(),
			finger:  a.Fingerprint(),
			title:   []rune(news.NormalizeTitle(a.Title)),
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return canonicalLess(entries[i].article, entries[j].article)
	})

	uf := newUnionFind(len(entries))
	unite := func(i, j int, t Tier) {
		if uf.union(i, j) {
			stats.add(t)
		}
	}

	byKey := func(key func(entry) string, t Tier) {
		first := make(map[string]int)
		for i, en := range entries {
			k := key(en)
			if k == "" {
				continue
			}
			if j, ok := first[k]; ok {
				unite(j, i, t)
				continue
			}
			first[k] = i
		}
	}
	byKey(func(en entry) string { return en.urlKey }, TierExact)
	byKey(func(en entry) string { return en.content }, TierExact)
	byKey(func(en entry) string { return en.finger }, TierFingerprint)

	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if Similar(entries[i].title, entries[j].title, e.cfg.Threshold) {
				unite(i, j, TierFuzzy)
			}
		}
	}

	clusters := make(map[int][]int)
	order := make([]int, 0)
	for i := range entries {
		root := uf.find(i)
		if _, ok := clusters[root]; !ok {
			order = append(order, root)
		}
		clusters[root] = append(clusters[root], i)
	}

	out := make([]news.Article, 0, len(order))
	for _, root := range order {
		members := clusters[root]
		best := entries[members[0]].article
		for _, m := range members[1:] {
			if better(entries[m].article, best) {
				best = entries[m].article
			}
		}
		if len(members) > 1 {
			var sources []string
			for _, m := range members {
				sources = append(sources, news.Contributors(entries[m].article)...)
			}
			best.Sources = sources
			best.Sources = news.Contributors(best)
			best.SourceCount = len(best.Sources)
		}
		out = append(out, best)
	}
	sort.SliceStable(out, func(i, j int) bool { return canonicalLess(out[i], out[j]) })

	stats.Output = len(out)
	stats.Merged = stats.Input - stats.Output
	if stats.Merged > 0 {
		e.logger.Debug("deduplicated articles",
			"input", stats.Input, "output", stats.Output,
			"exact", stats.Exact, "fingerprint", stats.Fingerprint, "fuzzy", stats.Fuzzy)
	}
	return out, stats
}

// Similarity is 1 minus the Levenshtein distance over the longer length,
// measured in runes.
func Similarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(string(a), string(b))
	return 1 - float64(d)/float64(longest)
}

// Similar reports whether two normalized titles meet the threshold. Empty
// titles never match. Pairs whose length difference alone rules the
// threshold out are rejected without computing the distance.
func Similar(a, b []rune, threshold float64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	longest := max(len(a), len(b))
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if 1-float64(diff)/float64(longest) < threshold {
		return false
	}
	return Similarity(a, b) >= threshold
}

// better orders cluster members: score, quality, newest publish, then
// canonical URL and source id, then every remaining field so the pick never
// depends on input order.
func better(a, b news.Article) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	if !a.Published.Equal(b.Published) {
		return a.Published.After(b.Published)
	}
	if a.CanonicalURL != b.CanonicalURL {
		return a.CanonicalURL < b.CanonicalURL
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	return cmp.Or(
		strings.Compare(a.Title, b.Title),
		strings.Compare(a.Summary, b.Summary),
		compareRest(a, b),
	) < 0
}

func canonicalLess(a, b news.Article) bool {
	if a.CanonicalURL != b.CanonicalURL {
		return a.CanonicalURL < b.CanonicalURL
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	if !a.Published.Equal(b.Published) {
		return a.Published.Before(b.Published)
	}
	if a.Summary != b.Summary {
		return a.Summary < b.Summary
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return compareRest(a, b) < 0
}

// compareRest totally orders articles that agree on identity, text and
// timing.
func compareRest(a, b news.Article) int {
	return cmp.Or(
		strings.Compare(a.URL, b.URL),
		strings.Compare(a.Author, b.Author),
		strings.Compare(a.Language, b.Language),
		strings.Compare(a.DiscussionURL, b.DiscussionURL),
		strings.Compare(strings.Join(a.Tags, "\x00"), strings.Join(b.Tags, "\x00")),
		strings.Compare(a.Category, b.Category),
		strings.Compare(a.Sentiment, b.Sentiment),
		strings.Compare(strings.Join(a.Sources, "\x00"), strings.Join(b.Sources, "\x00")),
		cmp.Compare(relevanceOf(a), relevanceOf(b)),
	)
}

func relevanceOf(a news.Article) float64 {
	if a.Relevance == nil {
		return -1
	}
	return *a.Relevance
}
