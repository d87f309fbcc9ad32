// Package metrics exports crawl counters to Prometheus and keeps a small
// in-process snapshot for the JSON health endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/deusflow/newscrawl/internal/crawl"
)

const namespace = "newscrawl"

type Metrics struct {
	SourceFetchTotal     *prometheus.CounterVec
	SourceFetchSeconds   *prometheus.HistogramVec
	ArticlesRawTotal     prometheus.Counter
	DedupMergedTotal     *prometheus.CounterVec
	CacheRequestsTotal   *prometheus.CounterVec
	HistoryFilteredTotal prometheus.Counter

	mu sync.RWMutex

	TotalRuns          int64
	TotalArticles      int64
	DuplicatesMerged   int64
	SourcesFailed      int64
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	totalRunDuration   time.Duration

	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

// NewMetrics creates and registers the collectors. A nil registerer uses
// the Prometheus default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceFetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_total",
			Help:      "Terminal source fetch outcomes",
		}, []string{"source", "outcome"}),
		SourceFetchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_seconds",
			Help:      "Time spent on a source including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		ArticlesRawTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_raw_total",
			Help:      "Articles returned by sources before deduplication",
		}),
		DedupMergedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_merged_total",
			Help:      "Articles merged into another cluster, by matching tier",
		}, []string{"tier"}),
		CacheRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Freshness cache lookups",
		}, []string{"result"}),
		HistoryFilteredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_filtered_total",
			Help:      "Articles suppressed because they were already seen",
		}),
		IsHealthy: true,
	}
}

// ObserveOutcome implements crawl.Observer.
func (m *Metrics) ObserveOutcome(o crawl.Outcome) {
	outcome := "success"
	if !o.Success {
		outcome = o.Kind
		if outcome == "" {
			outcome = "failure"
		}
	}
	m.SourceFetchTotal.WithLabelValues(o.Source, outcome).Inc()
	m.SourceFetchSeconds.WithLabelValues(o.Source).Observe(o.Elapsed.Seconds())
	if o.Success {
		m.ArticlesRawTotal.Add(float64(o.Articles))
	} else {
		m.mu.Lock()
		m.SourcesFailed++
		m.mu.Unlock()
	}
}

// ObserveDedup counts merges per tier.
func (m *Metrics) ObserveDedup(exact, fingerprint, fuzzy int) {
	m.DedupMergedTotal.WithLabelValues("exact").Add(float64(exact))
	m.DedupMergedTotal.WithLabelValues("fingerprint").Add(float64(fingerprint))
	m.DedupMergedTotal.WithLabelValues("fuzzy").Add(float64(fuzzy))

	m.mu.Lock()
	m.DuplicatesMerged += int64(exact + fingerprint + fuzzy)
	m.mu.Unlock()
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveHistoryFiltered counts suppressed articles.
func (m *Metrics) ObserveHistoryFiltered(n int) {
	m.HistoryFilteredTotal.Add(float64(n))
}

// RecordRun registers a finished pipeline run.
func (m *Metrics) RecordRun(articles int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRuns++
	m.TotalArticles += int64(articles)
	m.LastRunDuration = duration
	m.totalRunDuration += duration
	m.AverageRunDuration = m.totalRunDuration / time.Duration(m.TotalRuns)
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// Healthy reports whether the last run succeeded.
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"total_runs":              m.TotalRuns,
		"total_articles":          m.TotalArticles,
		"duplicates_merged":       m.DuplicatesMerged,
		"sources_failed":          m.SourcesFailed,
		"last_run_duration_ms":    m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms": m.AverageRunDuration.Milliseconds(),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.Format(time.RFC3339)
	}
	return stats
}
