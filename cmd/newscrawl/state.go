package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deusflow/newscrawl/internal/cache"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show per-source crawl health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			statuses := rt.Aggregator.Health()
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No crawl history yet.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Source", "Attempts", "Failures", "Success", "Avg yield", "Last success"})
			for _, s := range statuses {
				last := "never"
				if !s.LastSuccess.IsZero() {
					last = s.LastSuccess.Local().Format(time.DateTime)
				}
				t.AppendRow(table.Row{
					s.Source,
					s.Attempts,
					s.Failures,
					fmt.Sprintf("%.0f%%", s.SuccessRate*100),
					fmt.Sprintf("%.1f", s.AvgYield),
					last,
				})
			}
			t.Render()
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset the seen-article history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show how many identities are remembered",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			st, err := rt.History.Stats(ctx)
			if err != nil {
				return err
			}
			oldest := "-"
			if !st.Oldest.IsZero() {
				oldest = st.Oldest.Local().Format(time.DateTime)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "records: %d\noldest:  %s\nretention: %s\n",
				st.Records, oldest, rt.Config.History.Retention)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			n, err := rt.History.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every seen article",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			if err := rt.History.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	})
	return cmd
}

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the freshness cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached crawl result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			c := rt.Cache
			if c == nil {
				c = cache.New(rt.Stores.Cache, rt.Config.Cache.TTL, log)
			}
			if err := c.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})
	return cmd
}
