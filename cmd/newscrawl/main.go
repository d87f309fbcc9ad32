package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/deusflow/newscrawl/internal/app"
	"github.com/deusflow/newscrawl/internal/config"
	"github.com/deusflow/newscrawl/internal/logger"
)

var configPath string

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "err", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "newscrawl",
		Short:         "Crawl, deduplicate and rank news from many sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath+")")

	root.AddCommand(
		newCrawlCommand(),
		newSourcesCommand(),
		newWatchCommand(),
		newHealthCommand(),
		newHistoryCommand(),
		newCacheCommand(),
	)
	return root
}

// setup loads the configuration and initializes logging.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Init(cfg.Logging.Level, cfg.Logging.Format, os.Stderr), nil
}

// openRuntime loads the configuration and wires the pipeline. The caller
// closes the runtime.
func openRuntime(ctx context.Context) (*app.Runtime, *slog.Logger, *prometheus.Registry, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, nil, nil, err
	}
	reg := prometheus.NewRegistry()
	rt, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return rt, log, reg, nil
}

func closeRuntime(ctx context.Context, rt *app.Runtime, log *slog.Logger) {
	if err := rt.Close(ctx); err != nil {
		log.Warn("failed to close runtime", "err", err)
	}
}
