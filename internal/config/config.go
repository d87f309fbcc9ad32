// Package config loads the crawler configuration from a YAML file and
// NEWSCRAWL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newscrawl/internal/scoring"
	"github.com/deusflow/newscrawl/internal/source/jsonapi"
	"github.com/deusflow/newscrawl/internal/source/scrape"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "configs/newscrawl.yaml"

// Source types.
const (
	TypeRSS  = "rss"
	TypeHTML = "html"
	TypeJSON = "json"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Crawl      CrawlConfig      `yaml:"crawl"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Profile    ProfileConfig    `yaml:"profile"`
	Sources    []SourceConfig   `yaml:"sources"`
}

type CrawlConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`
	Deadline       time.Duration `yaml:"deadline"`
	Retry          RetryConfig   `yaml:"retry"`
	Rate           RateConfig    `yaml:"rate"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Jitter      float64       `yaml:"jitter"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`
	Disabled  bool    `yaml:"disabled"`
}

type ScoringConfig struct {
	DefaultQuality  float64 `yaml:"default_quality"`
	RelevanceWeight float64 `yaml:"relevance_weight"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ProfileConfig struct {
	Path         string  `yaml:"path"`
	MinRelevance float64 `yaml:"min_relevance"`
}

// SourceConfig describes one source and its static trust dimensions.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Language string `yaml:"language"`
	Enabled  *bool  `yaml:"enabled"`
	Limit    int    `yaml:"limit"`

	// html
	Selectors scrape.Selectors `yaml:"selectors"`

	// json
	Items            string         `yaml:"items"`
	Fields           jsonapi.Fields `yaml:"fields"`
	DiscussionPrefix string         `yaml:"discussion_prefix"`

	Quality *Quality `yaml:"quality"`
}

// Quality holds the six trust dimensions of a source, each in [0,1].
type Quality struct {
	Credibility   float64 `yaml:"credibility"`
	Uniqueness    float64 `yaml:"uniqueness"`
	SignalToNoise float64 `yaml:"signal_to_noise"`
	Freshness     float64 `yaml:"freshness"`
	Reliability   float64 `yaml:"reliability"`
	Coverage      float64 `yaml:"coverage"`
}

// IsEnabled reports whether the source takes part in crawls.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Profile returns the scoring profile, or false if none is configured.
func (s SourceConfig) Profile() (scoring.SourceProfile, bool) {
	if s.Quality == nil {
		return scoring.SourceProfile{}, false
	}
	q := s.Quality
	return scoring.SourceProfile{
		ID:            s.ID,
		Category:      s.Category,
		Credibility:   q.Credibility,
		Uniqueness:    q.Uniqueness,
		SignalToNoise: q.SignalToNoise,
		Freshness:     q.Freshness,
		Reliability:   q.Reliability,
		Coverage:      q.Coverage,
	}, true
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Concurrency:    6,
			AdapterTimeout: 15 * time.Second,
			Deadline:       60 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				Jitter:      0.5,
				MaxDelay:    30 * time.Second,
			},
			Rate: RateConfig{PerSecond: 2, Burst: 1},
		},
		Dedup:   DedupConfig{Threshold: 0.75},
		Scoring: ScoringConfig{DefaultQuality: 0.5, RelevanceWeight: 0.3},
		Cache:   CacheConfig{Enabled: true, TTL: 5 * time.Minute},
		History: HistoryConfig{Enabled: true, Retention: 24 * time.Hour},
		Storage: StorageConfig{Driver: DriverFile, Dir: defaultStateDir()},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Monitoring: MonitoringConfig{
			Addr: ":8080",
		},
	}
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "newscrawl")
	}
	return ".newscrawl"
}

// Load builds the configuration: defaults, then the YAML file at path
// (DefaultPath if path is empty and that file exists), then environment
// overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = getEnvOrDefault("NEWSCRAWL_CONFIG", DefaultPath)
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Crawl.Concurrency = getEnvIntOrDefault("NEWSCRAWL_CONCURRENCY", c.Crawl.Concurrency)
	c.Crawl.AdapterTimeout = getEnvDurationOrDefault("NEWSCRAWL_ADAPTER_TIMEOUT", c.Crawl.AdapterTimeout)
	c.Crawl.Deadline = getEnvDurationOrDefault("NEWSCRAWL_DEADLINE", c.Crawl.Deadline)
	c.Crawl.Retry.MaxAttempts = getEnvIntOrDefault("NEWSCRAWL_RETRY_ATTEMPTS", c.Crawl.Retry.MaxAttempts)
	c.Crawl.Retry.BaseDelay = getEnvDurationOrDefault("NEWSCRAWL_RETRY_DELAY", c.Crawl.Retry.BaseDelay)
	c.Crawl.Rate.PerSecond = getEnvFloatOrDefault("NEWSCRAWL_RATE_PER_SECOND", c.Crawl.Rate.PerSecond)

	c.Dedup.Threshold = getEnvFloatOrDefault("NEWSCRAWL_DEDUP_THRESHOLD", c.Dedup.Threshold)
	c.Dedup.Disabled = getEnvBoolOrDefault("NEWSCRAWL_DEDUP_DISABLED", c.Dedup.Disabled)

	c.Cache.Enabled = getEnvBoolOrDefault("NEWSCRAWL_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.TTL = getEnvDurationOrDefault("NEWSCRAWL_CACHE_TTL", c.Cache.TTL)
	c.History.Enabled = getEnvBoolOrDefault("NEWSCRAWL_HISTORY_ENABLED", c.History.Enabled)
	c.History.Retention = getEnvDurationOrDefault("NEWSCRAWL_HISTORY_RETENTION", c.History.Retention)

	c.Storage.Driver = getEnvOrDefault("NEWSCRAWL_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Dir = getEnvOrDefault("NEWSCRAWL_STATE_DIR", c.Storage.Dir)
	c.Storage.DSN = getEnvOrDefault("DATABASE_URL", c.Storage.DSN)

	c.Logging.Level = getEnvOrDefault("NEWSCRAWL_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("NEWSCRAWL_LOG_FORMAT", c.Logging.Format)
	if os.Getenv("DEBUG") == "true" {
		c.Logging.Level = "debug"
	}

	c.Monitoring.Enabled = getEnvBoolOrDefault("NEWSCRAWL_MONITOR_ENABLED", c.Monitoring.Enabled)
	c.Monitoring.Addr = getEnvOrDefault("NEWSCRAWL_MONITOR_ADDR", c.Monitoring.Addr)

	c.Profile.Path = getEnvOrDefault("NEWSCRAWL_PROFILE", c.Profile.Path)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// EnabledSources returns the sources taking part in crawls.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// Profiles returns the scoring profiles of every configured source.
func (c *Config) Profiles() []scoring.SourceProfile {
	var out []scoring.SourceProfile
	for _, s := range c.Sources {
		if p, ok := s.Profile(); ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.Crawl.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("crawl.concurrency must be at least 1"))
	}
	if c.Crawl.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("crawl.retry.max_attempts must be at least 1"))
	}
	if c.Crawl.Retry.Jitter < 0 || c.Crawl.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("crawl.retry.jitter must be in [0,1]"))
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Errorf("dedup.threshold must be in (0,1]"))
	}
	if c.Scoring.DefaultQuality < 0 || c.Scoring.DefaultQuality > 1 {
		errs = append(errs, fmt.Errorf("scoring.default_quality must be in [0,1]"))
	}
	if c.Scoring.RelevanceWeight < 0 || c.Scoring.RelevanceWeight > 1 {
		errs = append(errs, fmt.Errorf("scoring.relevance_weight must be in [0,1]"))
	}
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
		if c.Storage.Dir == "" {
			errs = append(errs, fmt.Errorf("storage.dir is required for the %s driver", c.Storage.Driver))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn (or DATABASE_URL) is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of file, sqlite, postgres"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json"))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("sources[%d]: id is required", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("source %q: url is required", s.ID))
		}
		switch s.Type {
		case TypeRSS, TypeHTML, TypeJSON:
		default:
			errs = append(errs, fmt.Errorf("source %q: type must be rss, html or json", s.ID))
		}
	}
	return errors.Join(errs...)
}
