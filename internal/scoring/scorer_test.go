package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/scoring"
)

type fixedHealth map[string]float64

func (f fixedHealth) SuccessRate(source string) float64 {
	if r, ok := f[source]; ok {
		return r
	}
	return 1.0
}

func fullProfile(id string) scoring.SourceProfile {
	return scoring.SourceProfile{ID: id, Credibility: 1, Uniqueness: 1, SignalToNoise: 1, Freshness: 1, Reliability: 1, Coverage: 1}
}

func TestBaseQualityWeights(t *testing.T) {
	assert.InDelta(t, 1.0, fullProfile("x").BaseQuality(), 1e-9)

	p := scoring.SourceProfile{Credibility: 1}
	assert.InDelta(t, 0.25, p.BaseQuality(), 1e-9)

	p = scoring.SourceProfile{Credibility: 0.8, Uniqueness: 0.6, SignalToNoise: 0.7, Freshness: 0.9, Reliability: 0.5, Coverage: 0.4}
	want := 0.25*0.8 + 0.2*0.6 + 0.2*0.7 + 0.15*0.9 + 0.1*0.5 + 0.1*0.4
	assert.InDelta(t, want, p.BaseQuality(), 1e-9)

	p = scoring.SourceProfile{Credibility: 3}
	assert.InDelta(t, 0.25, p.BaseQuality(), 1e-9)
}

func TestHealthModifier(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{0.0, 0.5},
		{0.40, 0.5},
		{0.4999, 0.5},
		{0.50, 0.8},
		{0.70, 0.8},
		{0.80, 1.0},
		{0.95, 1.0},
		{1.0, 1.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoring.HealthModifier(tt.rate), "rate %v", tt.rate)
	}
}

func TestEffectiveQualityUsesHealth(t *testing.T) {
	p := scoring.SourceProfile{ID: "s", Credibility: 0.8, Uniqueness: 0.8, SignalToNoise: 0.8, Freshness: 0.8, Reliability: 0.8, Coverage: 0.8}
	base := p.BaseQuality()

	for rate, mod := range map[float64]float64{0.40: 0.5, 0.70: 0.8, 0.95: 1.0} {
		s := scoring.NewScorer([]scoring.SourceProfile{p}, fixedHealth{"s": rate}, scoring.DefaultConfig())
		assert.InDelta(t, base*mod, s.EffectiveQuality("s"), 1e-9, "rate %v", rate)
	}
}

func TestUnknownSourceUsesDefaultQuality(t *testing.T) {
	s := scoring.NewScorer(nil, nil, scoring.DefaultConfig())
	assert.Equal(t, scoring.DefaultBaseQuality, s.EffectiveQuality("nobody"))

	s = scoring.NewScorer(nil, nil, scoring.Config{DefaultQuality: 0.3})
	assert.Equal(t, 0.3, s.EffectiveQuality("nobody"))

	s = scoring.NewScorer(nil, nil, scoring.Config{DefaultQuality: 0, RelevanceWeight: -1})
	assert.Equal(t, 0.0, s.EffectiveQuality("nobody"))

	s = scoring.NewScorer(nil, nil, scoring.Config{DefaultQuality: -1, RelevanceWeight: -1})
	assert.Equal(t, scoring.DefaultBaseQuality, s.EffectiveQuality("nobody"))
}

func TestRecencyBoundaries(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, scoring.Recency(now, now))
	assert.Equal(t, 0.0, scoring.Recency(now.Add(-48*time.Hour), now))
	assert.Equal(t, 0.0, scoring.Recency(now.Add(-72*time.Hour), now))
	assert.InDelta(t, 0.5, scoring.Recency(now.Add(-24*time.Hour), now), 1e-9)
	assert.Equal(t, 1.0, scoring.Recency(now.Add(time.Hour), now))
	assert.Equal(t, 0.0, scoring.Recency(time.Time{}, now))
}

func TestCompositeBlend(t *testing.T) {
	s := scoring.NewScorer(nil, nil, scoring.DefaultConfig())
	assert.InDelta(t, 0.6*0.5+0.4*0.5, s.Composite(0.5, 0.5, nil), 1e-9)

	rel := 1.0
	base := 0.6*0.5 + 0.4*0.5
	assert.InDelta(t, 0.7*base+0.3*rel, s.Composite(0.5, 0.5, &rel), 1e-9)
}

func TestCompositeZeroRelevanceWeight(t *testing.T) {
	s := scoring.NewScorer(nil, nil, scoring.Config{DefaultQuality: -1, RelevanceWeight: 0})
	rel := 1.0
	assert.InDelta(t, 0.2, s.Composite(0, 0.5, &rel), 1e-9)
	assert.InDelta(t, s.Composite(0, 0.5, nil), s.Composite(0, 0.5, &rel), 1e-9)

	s = scoring.NewScorer(nil, nil, scoring.Config{DefaultQuality: -1, RelevanceWeight: -1})
	assert.InDelta(t, 0.7*0.2+0.3*1.0, s.Composite(0, 0.5, &rel), 1e-9)
}

func TestScoreIsPureFunctionOfInputs(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := scoring.NewScorer([]scoring.SourceProfile{fullProfile("a")}, nil, scoring.DefaultConfig())

	a := news.Article{SourceID: "a", Published: now.Add(-12 * time.Hour), Score: 42}
	got := s.Score(a, now)

	assert.InDelta(t, 1.0, got.Quality, 1e-9)
	assert.InDelta(t, 0.75, got.Recency, 1e-9)
	assert.InDelta(t, 0.6*0.75+0.4*1.0, got.Score, 1e-9)
	assert.Equal(t, got, s.Score(got, now))
}
