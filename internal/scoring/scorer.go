package scoring

import (
	"time"

	"github.com/deusflow/newscrawl/internal/news"
)

const (
	// RecencyWindow is the age at which an article stops earning recency.
	RecencyWindow = 48 * time.Hour

	recencyWeight = 0.6
	qualityWeight = 0.4

	// DefaultRelevanceWeight is the share of the final score given to
	// interest relevance when an article carries one.
	DefaultRelevanceWeight = 0.3
)

// HealthSource reports the crawl success rate of a source.
type HealthSource interface {
	SuccessRate(source string) float64
}

// Config tunes a Scorer. Values are used as given, zero included; a
// negative value selects the package default.
type Config struct {
	DefaultQuality  float64
	RelevanceWeight float64
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{DefaultQuality: DefaultBaseQuality, RelevanceWeight: DefaultRelevanceWeight}
}

// Scorer computes effective quality, recency and the composite score.
//
// Blend rule: without relevance the score is 0.6*recency + 0.4*quality.
// With relevance r it is (1-w)*(0.6*recency + 0.4*quality) + w*r, where w
// is the configured relevance weight. The rule is fixed for the lifetime
// of a Scorer so rankings are reproducible.
type Scorer struct {
	profiles       map[string]SourceProfile
	health         HealthSource
	defaultQuality float64
	relevanceW     float64
}

// NewScorer builds a scorer over the given profiles. health may be nil.
func NewScorer(profiles []SourceProfile, health HealthSource, cfg Config) *Scorer {
	s := &Scorer{
		profiles:       make(map[string]SourceProfile, len(profiles)),
		health:         health,
		defaultQuality: DefaultBaseQuality,
		relevanceW:     DefaultRelevanceWeight,
	}
	if cfg.DefaultQuality >= 0 {
		s.defaultQuality = clamp01(cfg.DefaultQuality)
	}
	if cfg.RelevanceWeight >= 0 {
		s.relevanceW = clamp01(cfg.RelevanceWeight)
	}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

// BaseQuality returns the static quality of a source.
func (s *Scorer) BaseQuality(source string) float64 {
	if p, ok := s.profiles[source]; ok {
		return p.BaseQuality()
	}
	return s.defaultQuality
}

// EffectiveQuality is base quality scaled by the health modifier.
func (s *Scorer) EffectiveQuality(source string) float64 {
	q := s.BaseQuality(source)
	if s.health != nil {
		q *= HealthModifier(s.health.SuccessRate(source))
	}
	return clamp01(q)
}

// Recency decays linearly from 1 at publish time to 0 after 48 hours.
func Recency(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	age := now.Sub(published).Hours()
	return clamp01(1 - age/RecencyWindow.Hours())
}

// Composite blends recency, quality and optional relevance.
func (s *Scorer) Composite(recency, quality float64, relevance *float64) float64 {
	base := recencyWeight*recency + qualityWeight*quality
	if relevance == nil {
		return base
	}
	return (1-s.relevanceW)*base + s.relevanceW*clamp01(*relevance)
}

// Score annotates an article with its derived scores as of now.
func (s *Scorer) Score(a news.Article, now time.Time) news.Article {
	a.Quality = s.EffectiveQuality(a.SourceID)
	a.Recency = Recency(a.Published, now)
	a.Score = s.Composite(a.Recency, a.Quality, a.Relevance)
	return a
}

// ScoreAll annotates every article.
func (s *Scorer) ScoreAll(articles []news.Article, now time.Time) []news.Article {
	out := make([]news.Article, len(articles))
	for i, a := range articles {
		out[i] = s.Score(a, now)
	}
	return out
}
