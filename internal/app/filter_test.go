package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newscrawl/internal/app"
	"github.com/deusflow/newscrawl/internal/config"
	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/source/jsonapi"
	"github.com/deusflow/newscrawl/internal/source/rss"
	"github.com/deusflow/newscrawl/internal/source/scrape"
)

func TestFilter(t *testing.T) {
	articles := []news.Article{
		{Title: "Rust 2.0 released", SourceID: "hackernews", Category: "tech", Language: "en", Published: fixed.Add(-time.Hour),
			Tags: []string{"Rust", "release"}, Author: "Ana Kim"},
		{Title: "Election results", Summary: "Turnout was high", SourceID: "dr", Category: "Politics", Language: "da", Published: fixed.Add(-3 * time.Hour),
			Tags: []string{"politics"}, Author: "Lars Holm"},
		{Title: "Old football match", SourceID: "bbc-sport", Category: "sport", Language: "en", Published: fixed.Add(-72 * time.Hour),
			Author: "Kimberly Ross"},
		{Title: "Undated rumour", Category: "tech", Language: "en"},
		{Title: "No language", Category: "tech", Published: fixed.Add(-time.Hour)},
	}

	tests := []struct {
		name string
		req  app.Request
		want []string
	}{
		{"no filters", app.Request{}, []string{"Rust 2.0 released", "Election results", "Old football match", "Undated rumour", "No language"}},
		{"category", app.Request{Categories: []string{"TECH"}}, []string{"Rust 2.0 released", "Undated rumour", "No language"}},
		{"exclude", app.Request{ExcludeCategories: []string{"tech", "politics"}}, []string{"Old football match"}},
		{"language", app.Request{Languages: []string{"da"}}, []string{"Election results"}},
		{"since drops undated", app.Request{Since: 6 * time.Hour}, []string{"Rust 2.0 released", "Election results", "No language"}},
		{"search summary", app.Request{Search: "TURNOUT"}, []string{"Election results"}},
		{"combined", app.Request{Categories: []string{"tech"}, Languages: []string{"en"}, Since: 2 * time.Hour}, []string{"Rust 2.0 released"}},
		{"exclude source substring", app.Request{ExcludeSources: []string{"HACKER", "sport"}}, []string{"Election results", "Undated rumour", "No language"}},
		{"tag substring", app.Request{Tags: []string{"rus"}}, []string{"Rust 2.0 released"}},
		{"any tag", app.Request{Tags: []string{"politics", "RUST"}}, []string{"Rust 2.0 released", "Election results"}},
		{"exclude tag", app.Request{ExcludeTags: []string{"POLIT"}}, []string{"Rust 2.0 released", "Old football match", "Undated rumour", "No language"}},
		{"author", app.Request{Authors: []string{"kim"}}, []string{"Rust 2.0 released", "Old football match"}},
		{"exclude author", app.Request{ExcludeAuthors: []string{"KIM"}}, []string{"Election results", "Undated rumour", "No language"}},
		{"exclude keyword", app.Request{Exclude: "turnout"}, []string{"Rust 2.0 released", "Old football match", "Undated rumour", "No language"}},
		{"search and exclude", app.Request{Search: "o", Exclude: "match"}, []string{"Election results", "Undated rumour", "No language"}},
		{"blank lists ignored", app.Request{Tags: []string{" "}, Authors: []string{""}}, []string{"Rust 2.0 released", "Election results", "Old football match", "Undated rumour", "No language"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := app.Filter(articles, tt.req, fixed)
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestMinRelevance(t *testing.T) {
	low, high := 0.2, 0.8
	articles := []news.Article{
		{Title: "low", Relevance: &low},
		{Title: "high", Relevance: &high},
		{Title: "unscored"},
	}
	assert.Equal(t, []string{"high", "unscored"}, titles(app.MinRelevance(articles, 0.5)))
}

func TestMinQuality(t *testing.T) {
	articles := []news.Article{
		{Title: "weak", Quality: 0.3},
		{Title: "edge", Quality: 0.5},
		{Title: "strong", Quality: 0.9},
	}
	assert.Equal(t, []string{"edge", "strong"}, titles(app.MinQuality(articles, 0.5)))
	assert.Empty(t, app.MinQuality(articles, 0.95))
}

func TestMinSources(t *testing.T) {
	articles := []news.Article{
		{Title: "single", SourceCount: 1},
		{Title: "unprepared"},
		{Title: "pair", SourceCount: 2},
		{Title: "wide", SourceCount: 4},
	}
	tests := []struct {
		n    int
		want []string
	}{
		{1, []string{"single", "unprepared", "pair", "wide"}},
		{2, []string{"pair", "wide"}},
		{3, []string{"wide"}},
		{5, []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, titles(app.MinSources(articles, tt.n)), "n=%d", tt.n)
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90m", 90 * time.Minute, false},
		{"6h", 6 * time.Hour, false},
		{"2d", 48 * time.Hour, false},
		{"1W", 7 * 24 * time.Hour, false},
		{"xd", 0, true},
		{"-3h", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := app.ParseSince(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRank(t *testing.T) {
	articles := []news.Article{
		{Title: "older", CanonicalURL: "https://b.example/", Score: 0.5, Published: fixed.Add(-2 * time.Hour)},
		{Title: "best", CanonicalURL: "https://c.example/", Score: 0.9, Published: fixed.Add(-5 * time.Hour)},
		{Title: "newer", CanonicalURL: "https://z.example/", Score: 0.5, Published: fixed.Add(-time.Hour)},
		{Title: "tie", CanonicalURL: "https://a.example/", Score: 0.5, Published: fixed.Add(-time.Hour)},
	}
	app.Rank(articles)
	assert.Equal(t, []string{"best", "tie", "newer", "older"}, titles(articles))
}

func TestBuildAdapters(t *testing.T) {
	sources := []config.SourceConfig{
		{ID: "feed", Type: config.TypeRSS, URL: "https://www.feeds.example/rss", Category: "world"},
		{ID: "page", Type: config.TypeHTML, URL: "https://news.example/latest"},
		{ID: "api", Type: config.TypeJSON, URL: "https://api.example/top.json", Items: "hits"},
	}
	adapters, err := app.BuildAdapters(sources, nil)
	require.NoError(t, err)
	require.Len(t, adapters, 3)

	assert.IsType(t, &rss.Adapter{}, adapters[0])
	assert.IsType(t, &scrape.Adapter{}, adapters[1])
	assert.IsType(t, &jsonapi.Adapter{}, adapters[2])
	assert.Equal(t, "feeds.example", adapters[0].Domain())
	assert.Equal(t, "world", adapters[0].Category())

	_, err = app.BuildAdapters([]config.SourceConfig{{ID: "x", Type: "gopher", URL: "gopher://x"}}, nil)
	assert.ErrorContains(t, err, "unsupported type")
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []string{config.DriverFile, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			stores, err := app.OpenStores(ctx, config.StorageConfig{Driver: driver, Dir: t.TempDir()}, nil)
			require.NoError(t, err)
			defer stores.Close()

			require.NoError(t, stores.History.Record(ctx, []string{"k1"}, fixed))
			seen, err := stores.History.Seen(ctx, []string{"k1", "k2"})
			require.NoError(t, err)
			assert.True(t, seen["k1"])
			assert.False(t, seen["k2"])
		})
	}

	_, err := app.OpenStores(ctx, config.StorageConfig{Driver: "etcd"}, nil)
	assert.ErrorContains(t, err, "unknown storage driver")
}
