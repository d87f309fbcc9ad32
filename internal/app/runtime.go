package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deusflow/newscrawl/internal/cache"
	"github.com/deusflow/newscrawl/internal/config"
	"github.com/deusflow/newscrawl/internal/health"
	"github.com/deusflow/newscrawl/internal/history"
	"github.com/deusflow/newscrawl/internal/metrics"
	"github.com/deusflow/newscrawl/internal/profile"
	"github.com/deusflow/newscrawl/internal/source"
	"github.com/deusflow/newscrawl/internal/storage/file"
	"github.com/deusflow/newscrawl/internal/storage/postgres"
	"github.com/deusflow/newscrawl/internal/storage/sqlite"
)

// Stores groups the persistence ports of the pipeline.
type Stores struct {
	Health  health.Store
	History history.Store
	Cache   cache.Store

	closers []io.Closer
}

// Close releases every opened backend.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStores opens the backend named by cfg.Driver. The postgres driver
// keeps health and history in the database and the cache on local disk.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case config.DriverFile, "":
		fs, err := file.New(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return &Stores{Health: fs, History: fs, Cache: fs}, nil

	case config.DriverSQLite:
		db, err := sqlite.New(cfg.Dir)
		if err != nil {
			return nil, err
		}
		logger.Debug("sqlite store opened", "path", db.Path())
		return &Stores{Health: db, History: db, Cache: db, closers: []io.Closer{db}}, nil

	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		fs, err := file.New(cfg.Dir)
		if err != nil {
			pg.Close()
			return nil, err
		}
		return &Stores{Health: pg, History: pg, Cache: fs, closers: []io.Closer{pg}}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Runtime is a fully wired pipeline with its persistent state.
type Runtime struct {
	Config     *config.Config
	Aggregator *Aggregator
	Tracker    *health.Tracker
	Cache      *cache.Cache
	History    *history.History
	Metrics    *metrics.Metrics
	Stores     *Stores
}

// Build opens the stores, loads source health and the interest profile and
// assembles the aggregator. reg receives the Prometheus collectors; nil
// uses the default registerer.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	stores, err := OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adapters, err := BuildAdapters(cfg.EnabledSources(), source.DefaultClient(cfg.Crawl.AdapterTimeout))
	if err != nil {
		stores.Close()
		return nil, err
	}

	var prof *profile.Profile
	if cfg.Profile.Path != "" {
		prof, err = profile.Load(cfg.Profile.Path)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("load profile: %w", err)
		}
	}

	tracker := health.NewTracker(stores.Health, logger)
	if err := tracker.Load(ctx); err != nil {
		stores.Close()
		return nil, err
	}

	rt := &Runtime{
		Config:  cfg,
		Tracker: tracker,
		Metrics: metrics.NewMetrics(reg),
		Stores:  stores,
		History: history.New(stores.History, cfg.History.Retention, logger),
	}
	if cfg.Cache.Enabled {
		rt.Cache = cache.New(stores.Cache, cfg.Cache.TTL, logger)
	}

	opts := Options{
		Adapters: adapters,
		Tracker:  tracker,
		Cache:    rt.Cache,
		Profile:  prof,
		Metrics:  rt.Metrics,
		Logger:   logger,
	}
	if cfg.History.Enabled {
		opts.History = rt.History
	}
	rt.Aggregator = New(cfg, opts)
	return rt, nil
}

// Close flushes source health and closes the stores.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(r.Tracker.Flush(ctx), r.Stores.Close())
}
