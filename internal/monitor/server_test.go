package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newscrawl/internal/crawl"
	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/metrics"
	"github.com/deusflow/newscrawl/internal/source"
)

type fakeStatus struct{}

func (fakeStatus) Health() []health.Status {
	return []health.Status{{Source: "bbc", Record: health.Record{Attempts: 4, Failures: 1}, SuccessRate: 0.75}}
}

func (fakeStatus) Sources() []source.Info {
	return []source.Info{{ID: "bbc", Category: "world", Domain: "feeds.bbci.co.uk"}}
}

func newTestServer(t *testing.T) (*Server, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	return NewServer(":0", m, fakeStatus{}, reg, nil), m
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, m := newTestServer(t)

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	m.SetError("all sources failed")
	rec = get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "all sources failed", body["last_error"])
}

func TestStatsEndpoint(t *testing.T) {
	s, m := newTestServer(t)
	m.RecordRun(12, 300*time.Millisecond)

	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["total_runs"])
	assert.Equal(t, 12.0, body["total_articles"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(t)
	m.ObserveOutcome(crawl.Outcome{Source: "bbc", Success: true, Articles: 3, Elapsed: time.Second})

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `newscrawl_source_fetch_total{outcome="success",source="bbc"} 1`))
}

func TestSourcesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sources []source.Info   `json:"sources"`
		Health  []health.Status `json:"health"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "feeds.bbci.co.uk", body.Sources[0].Domain)
	require.Len(t, body.Health, 1)
	assert.Equal(t, 0.75, body.Health[0].SuccessRate)
	assert.Equal(t, 4, body.Health[0].Attempts)
}
