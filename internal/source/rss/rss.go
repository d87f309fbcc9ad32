// Package rss is the RSS/Atom/JSON Feed source adapter.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/source"
)

const acceptFeeds = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8"

// summaryRunes caps the stored summary length.
const summaryRunes = 500

// Config describes one feed.
type Config struct {
	ID       string
	URL      string
	Category string
	Language string
	Limit    int
}

// Adapter fetches and parses one feed.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ source.Adapter = (*Adapter)(nil)

// New creates a feed adapter. A nil client uses source.DefaultClient.
func New(cfg Config, client *http.Client) *Adapter {
	if client == nil {
		client = source.DefaultClient(0)
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) ID() string       { return a.cfg.ID }
func (a *Adapter) Category() string { return a.cfg.Category }
func (a *Adapter) Domain() string   { return news.Domain(a.cfg.URL) }

// Fetch downloads the feed and converts its items.
func (a *Adapter) Fetch(ctx context.Context) ([]news.Article, error) {
	body, err := source.Get(ctx, a.client, a.cfg.ID, a.cfg.URL, acceptFeeds)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, source.NewError(source.KindParse, a.cfg.ID, fmt.Errorf("parse feed: %w", err))
	}

	lang := a.cfg.Language
	if lang == "" {
		lang = normalizeLang(feed.Language)
	}

	articles := make([]news.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if a.cfg.Limit > 0 && len(articles) >= a.cfg.Limit {
			break
		}
		art, ok := convert(item, lang)
		if !ok {
			continue
		}
		art.SourceID = a.cfg.ID
		art.Category = a.cfg.Category
		articles = append(articles, art)
	}
	return articles, nil
}

func convert(item *gofeed.Item, lang string) (news.Article, bool) {
	title := strings.TrimSpace(source.PlainText(item.Title))
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return news.Article{}, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	art := news.Article{
		URL:      link,
		Title:    title,
		Summary:  source.Truncate(source.PlainText(summary), summaryRunes),
		Tags:     item.Categories,
		Language: lang,
	}
	switch {
	case item.PublishedParsed != nil:
		art.Published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		art.Published = item.UpdatedParsed.UTC()
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		art.Author = item.Authors[0].Name
	}
	if comments, ok := item.Custom["comments"]; ok {
		art.DiscussionURL = comments
	}
	return art, true
}

func normalizeLang(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	return l
}
