package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/deusflow/newscrawl/internal/logger"
	"github.com/deusflow/newscrawl/internal/monitor"
)

const defaultSchedule = "*/15 * * * *"

func newWatchCommand() *cobra.Command {
	var (
		flags    crawlFlags
		schedule string
		monitorF bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Crawl on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, reg, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			req, err := flags.request(rt.Config.Profile.MinRelevance)
			if err != nil {
				return err
			}

			if monitorF || rt.Config.Monitoring.Enabled {
				srv := monitor.NewServer(rt.Config.Monitoring.Addr, rt.Metrics, rt.Aggregator, reg, log)
				go func() {
					if err := srv.Run(ctx); err != nil {
						log.Error("monitoring server stopped", "err", err)
					}
				}()
			}

			runOnce := func() {
				logger.Debug("crawl tick", "schedule", schedule)
				report, err := rt.Aggregator.Run(ctx, req)
				if err != nil {
					rt.Metrics.SetError(err.Error())
					log.Error("crawl failed", "err", err)
					return
				}
				log.Info("crawl complete",
					"run_id", report.RunID,
					"articles", len(report.Articles),
					"from_cache", report.FromCache,
					"sources_ok", report.Stats.SourcesOK,
					"sources_failed", report.Stats.SourcesFailed)
				if err := printReport(cmd.OutOrStdout(), report, flags.format); err != nil {
					log.Error("failed to print report", "err", err)
				}
			}

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			if _, err := c.AddFunc(schedule, runOnce); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			runOnce()
			c.Start()
			logger.Info("watching", "schedule", schedule)

			<-ctx.Done()
			<-c.Stop().Done()
			log.Info("watch stopped")
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&schedule, "cron", defaultSchedule, "crawl schedule in cron syntax")
	cmd.Flags().BoolVar(&monitorF, "monitor", false, "serve /health, /metrics and /sources")
	return cmd
}
