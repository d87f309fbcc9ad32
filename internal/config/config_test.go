package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newscrawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("NEWSCRAWL_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Crawl.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.Crawl.AdapterTimeout)
	assert.Equal(t, 60*time.Second, cfg.Crawl.Deadline)
	assert.Equal(t, 3, cfg.Crawl.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Crawl.Retry.BaseDelay)
	assert.InDelta(t, 0.75, cfg.Dedup.Threshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Scoring.DefaultQuality, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 24*time.Hour, cfg.History.Retention)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.NotEmpty(t, cfg.Storage.Dir)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
crawl:
  concurrency: 3
  adapter_timeout: 5s
  retry:
    max_attempts: 2
dedup:
  threshold: 0.8
sources:
  - id: bbc
    type: rss
    url: https://feeds.bbci.co.uk/news/rss.xml
    category: world
    quality:
      credibility: 1
      uniqueness: 1
      signal_to_noise: 1
      freshness: 1
      reliability: 1
      coverage: 1
  - id: lobsters
    type: html
    url: https://lobste.rs
    enabled: false
    selectors:
      item: [".story"]
      title: a.u-url
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Crawl.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Crawl.AdapterTimeout)
	assert.Equal(t, 60*time.Second, cfg.Crawl.Deadline, "unset fields keep defaults")
	assert.Equal(t, 2, cfg.Crawl.Retry.MaxAttempts)
	assert.InDelta(t, 0.8, cfg.Dedup.Threshold, 1e-9)

	enabled := cfg.EnabledSources()
	require.Len(t, enabled, 1)
	assert.Equal(t, "bbc", enabled[0].ID)

	profiles := cfg.Profiles()
	require.Len(t, profiles, 1)
	assert.InDelta(t, 1.0, profiles[0].BaseQuality(), 1e-9)
	assert.Equal(t, []string{".story"}, cfg.Sources[1].Selectors.Item)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "crawl:\n  concurrency: 3\n")
	t.Setenv("NEWSCRAWL_CONCURRENCY", "9")
	t.Setenv("NEWSCRAWL_CACHE_TTL", "90s")
	t.Setenv("NEWSCRAWL_CACHE_ENABLED", "false")
	t.Setenv("NEWSCRAWL_STORAGE_DRIVER", "sqlite")
	t.Setenv("DEBUG", "true")
	t.Setenv("NEWSCRAWL_DEADLINE", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Crawl.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 60*time.Second, cfg.Crawl.Deadline)
}

func TestExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "crawl:\n  concurency: 3\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concurrency", func(c *Config) { c.Crawl.Concurrency = 0 }, "crawl.concurrency"},
		{"threshold", func(c *Config) { c.Dedup.Threshold = 1.5 }, "dedup.threshold"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "DATABASE_URL"},
		{"duplicate source", func(c *Config) {
			c.Sources = []SourceConfig{
				{ID: "a", Type: TypeRSS, URL: "https://a"},
				{ID: "a", Type: TypeRSS, URL: "https://a"},
			}
		}, "duplicate id"},
		{"source type", func(c *Config) {
			c.Sources = []SourceConfig{{ID: "a", Type: "atom", URL: "https://a"}}
		}, "type must be"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"default quality", func(c *Config) { c.Scoring.DefaultQuality = -0.1 }, "scoring.default_quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())

	zero := Default()
	zero.Scoring.RelevanceWeight = 0
	assert.NoError(t, zero.Validate())
}
