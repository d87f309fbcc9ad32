package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/deusflow/newscrawl/internal/crawl"
)

func TestObserveOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOutcome(crawl.Outcome{Source: "bbc", Success: true, Articles: 12, Elapsed: time.Second})
	m.ObserveOutcome(crawl.Outcome{Source: "hn", Kind: "timeout"})
	m.ObserveOutcome(crawl.Outcome{Source: "hn", Kind: "timeout"})

	assert.InDelta(t, 1, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("bbc", "success")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("hn", "timeout")), 1e-9)
	assert.InDelta(t, 12, testutil.ToFloat64(m.ArticlesRawTotal), 1e-9)
	assert.Equal(t, 2, testutil.CollectAndCount(m.SourceFetchSeconds))
	assert.Equal(t, int64(2), m.GetStats()["sources_failed"])
}

func TestObserveDedupAndCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveDedup(2, 1, 3)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveHistoryFiltered(4)

	assert.InDelta(t, 3, testutil.ToFloat64(m.DedupMergedTotal.WithLabelValues("fuzzy")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("miss")), 1e-9)
	assert.InDelta(t, 4, testutil.ToFloat64(m.HistoryFilteredTotal), 1e-9)
	assert.Equal(t, int64(6), m.GetStats()["duplicates_merged"])
}

func TestRunSnapshot(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordRun(10, 2*time.Second)
	m.RecordRun(20, 4*time.Second)

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["total_runs"])
	assert.Equal(t, int64(30), stats["total_articles"])
	assert.Equal(t, int64(3000), stats["average_run_duration_ms"])
	assert.True(t, m.Healthy())

	m.SetError("all sources failed")
	assert.False(t, m.Healthy())
	assert.Equal(t, "all sources failed", m.GetStats()["last_error"])
}
