package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/deusflow/newscrawl/internal/app"
	"github.com/deusflow/newscrawl/internal/source"
)

type crawlFlags struct {
	sources        []string
	excludeSources []string
	categories     []string
	excludeCats    []string
	languages      []string
	tags           []string
	excludeTags    []string
	authors        []string
	excludeAuthors []string
	search         string
	exclude        string
	since          string
	minRelevance   float64
	minQuality     float64
	minSources     int
	newOnly        bool
	noCache      bool
	limit        int
	format       string
}

func (f *crawlFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVarP(&f.sources, "source", "s", nil, "only crawl these source ids")
	fs.StringSliceVar(&f.categories, "category", nil, "keep only these categories")
	fs.StringSliceVar(&f.excludeSources, "exclude-source", nil, "drop articles from sources whose id contains this text")
	fs.StringSliceVar(&f.excludeCats, "exclude-category", nil, "drop these categories")
	fs.StringSliceVar(&f.languages, "language", nil, "keep only these languages")
	fs.StringSliceVar(&f.tags, "tag", nil, "keep articles with a tag containing this text")
	fs.StringSliceVar(&f.excludeTags, "exclude-tag", nil, "drop articles with a tag containing this text")
	fs.StringSliceVar(&f.authors, "author", nil, "keep articles whose author contains this text")
	fs.StringSliceVar(&f.excludeAuthors, "exclude-author", nil, "drop articles whose author contains this text")
	fs.StringVar(&f.search, "search", "", "keep articles whose title or summary contains this text")
	fs.StringVar(&f.exclude, "exclude", "", "drop articles whose title or summary contains this text")
	fs.StringVar(&f.since, "since", "", "keep articles published within this window (e.g. 6h, 2d)")
	fs.Float64Var(&f.minRelevance, "min-relevance", 0, "drop articles below this profile relevance")
	fs.Float64Var(&f.minQuality, "min-quality", 0, "drop articles below this effective source quality")
	fs.IntVar(&f.minSources, "min-sources", 0, "keep stories reported by at least this many sources")
	fs.BoolVar(&f.newOnly, "new-only", false, "drop articles seen in earlier runs")
	fs.BoolVar(&f.noCache, "no-cache", false, "crawl even if a fresh cached result exists")
	fs.IntVarP(&f.limit, "limit", "n", 0, "maximum number of articles (0 = all)")
	fs.StringVarP(&f.format, "format", "f", "json", "output format: json or table")
}

func (f *crawlFlags) request(defaultMinRelevance float64) (app.Request, error) {
	since, err := app.ParseSince(f.since)
	if err != nil {
		return app.Request{}, err
	}
	if f.minQuality < 0 || f.minQuality > 1 {
		return app.Request{}, fmt.Errorf("min-quality must be in [0,1], got %v", f.minQuality)
	}
	if f.minSources < 0 {
		return app.Request{}, fmt.Errorf("min-sources must not be negative, got %d", f.minSources)
	}
	minRel := f.minRelevance
	if minRel == 0 {
		minRel = defaultMinRelevance
	}
	return app.Request{
		Sources:           f.sources,
		Categories:        f.categories,
		ExcludeCategories: f.excludeCats,
		Languages:         f.languages,
		ExcludeSources:    f.excludeSources,
		Tags:              f.tags,
		ExcludeTags:       f.excludeTags,
		Authors:           f.authors,
		ExcludeAuthors:    f.excludeAuthors,
		Search:            f.search,
		Exclude:           f.exclude,
		Since:             since,
		MinRelevance:      minRel,
		MinQuality:        f.minQuality,
		MinSources:        f.minSources,
		NewOnly:           f.newOnly,
		NoCache:           f.noCache,
		Limit:             f.limit,
	}, nil
}

func newCrawlCommand() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every enabled source once and print the ranked articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			req, err := flags.request(rt.Config.Profile.MinRelevance)
			if err != nil {
				return err
			}
			report, err := rt.Aggregator.Run(ctx, req)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report, flags.format)
		},
	}
	flags.register(cmd)
	return cmd
}

func newSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the enabled sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, log, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, log)

			renderSources(cmd.OutOrStdout(), rt.Aggregator.Sources())
			return nil
		},
	}
}

func printReport(w io.Writer, report *app.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "table":
		renderReport(w, report)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderReport(w io.Writer, report *app.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Score", "Source", "Category", "Published", "Title"})
	for i, a := range report.Articles {
		published := ""
		if !a.Published.IsZero() {
			published = a.Published.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.3f", a.Score),
			fmt.Sprintf("%s (%d)", a.SourceID, a.SourceCount),
			a.Category,
			published,
			source.Truncate(a.Title, 80),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d ok / %d failed", report.Stats.SourcesOK, report.Stats.SourcesFailed),
		"", report.Stats.Elapsed.Round(time.Millisecond), cacheNote(report)})
	t.Render()

	for _, d := range report.Diagnostics {
		fmt.Fprintln(w, "diagnostic:", d)
	}
}

func cacheNote(report *app.Report) string {
	if report.FromCache {
		return "served from cache"
	}
	return fmt.Sprintf("%d raw, %d merged", report.Stats.Raw, report.Stats.Merged)
}

func renderSources(w io.Writer, infos []source.Info) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Category", "Domain"})
	for _, s := range infos {
		t.AppendRow(table.Row{s.ID, s.Category, s.Domain})
	}
	t.Render()
}
