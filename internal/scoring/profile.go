// Package scoring turns source trust, crawl health, article age and
// interest relevance into the composite rank score of an article.
package scoring

// Dimension weights for the base quality of a source. They sum to 1.
const (
	WeightCredibility   = 0.25
	WeightUniqueness    = 0.20
	WeightSignalToNoise = 0.20
	WeightFreshness     = 0.15
	WeightReliability   = 0.10
	WeightCoverage      = 0.10
)

// DefaultBaseQuality is used for sources without a registered profile.
const DefaultBaseQuality = 0.5

// SourceProfile is the static trust configuration of one source.
type SourceProfile struct {
	ID            string  `yaml:"id" json:"id"`
	Category      string  `yaml:"category" json:"category"`
	Credibility   float64 `yaml:"credibility" json:"credibility"`
	Uniqueness    float64 `yaml:"uniqueness" json:"uniqueness"`
	SignalToNoise float64 `yaml:"signal_to_noise" json:"signal_to_noise"`
	Freshness     float64 `yaml:"freshness" json:"freshness"`
	Reliability   float64 `yaml:"reliability" json:"reliability"`
	Coverage      float64 `yaml:"coverage" json:"coverage"`
}

// BaseQuality is the weighted sum of the six dimensions, each clamped to [0,1].
func (p SourceProfile) BaseQuality() float64 {
	return WeightCredibility*clamp01(p.Credibility) +
		WeightUniqueness*clamp01(p.Uniqueness) +
		WeightSignalToNoise*clamp01(p.SignalToNoise) +
		WeightFreshness*clamp01(p.Freshness) +
		WeightReliability*clamp01(p.Reliability) +
		WeightCoverage*clamp01(p.Coverage)
}

// HealthModifier maps a crawl success rate to a quality multiplier.
func HealthModifier(successRate float64) float64 {
	switch {
	case successRate < 0.50:
		return 0.5
	case successRate < 0.80:
		return 0.8
	default:
		return 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
