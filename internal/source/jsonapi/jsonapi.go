// Package jsonapi is the adapter for JSON endpoints that list stories.
// Fields are located with dotted paths into each item.
package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/source"
)

const summaryRunes = 500

// Fields maps article fields to dotted paths inside one item.
type Fields struct {
	Title      string `yaml:"title" json:"title"`
	URL        string `yaml:"url" json:"url"`
	Summary    string `yaml:"summary" json:"summary"`
	Published  string `yaml:"published" json:"published"`
	Author     string `yaml:"author" json:"author"`
	Tags       string `yaml:"tags" json:"tags"`
	Discussion string `yaml:"discussion" json:"discussion"`
}

// DefaultFields match the common story-list shape.
var DefaultFields = Fields{
	Title:     "title",
	URL:       "url",
	Summary:   "summary",
	Published: "published",
	Author:    "author",
	Tags:      "tags",
}

// Config describes one endpoint. Items is the dotted path to the item
// array; empty means the document root is the array.
type Config struct {
	ID       string
	URL      string
	Category string
	Language string
	Limit    int
	Items    string
	Fields   Fields
	// DiscussionPrefix is prepended to the Discussion value when it is
	// not already an absolute URL (e.g. an item id).
	DiscussionPrefix string
}

// Adapter reads one JSON endpoint.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ source.Adapter = (*Adapter)(nil)

// New creates a JSON adapter. Empty field paths take DefaultFields.
func New(cfg Config, client *http.Client) *Adapter {
	if client == nil {
		client = source.DefaultClient(0)
	}
	cfg.Fields = withDefaults(cfg.Fields)
	return &Adapter{cfg: cfg, client: client}
}

func withDefaults(f Fields) Fields {
	d := DefaultFields
	if f.Title == "" {
		f.Title = d.Title
	}
	if f.URL == "" {
		f.URL = d.URL
	}
	if f.Summary == "" {
		f.Summary = d.Summary
	}
	if f.Published == "" {
		f.Published = d.Published
	}
	if f.Author == "" {
		f.Author = d.Author
	}
	if f.Tags == "" {
		f.Tags = d.Tags
	}
	return f
}

func (a *Adapter) ID() string       { return a.cfg.ID }
func (a *Adapter) Category() string { return a.cfg.Category }
func (a *Adapter) Domain() string   { return news.Domain(a.cfg.URL) }

// Fetch downloads the document and maps every item with a title and URL.
func (a *Adapter) Fetch(ctx context.Context) ([]news.Article, error) {
	body, err := source.Get(ctx, a.client, a.cfg.ID, a.cfg.URL, "application/json")
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, source.NewError(source.KindParse, a.cfg.ID, fmt.Errorf("decode json: %w", err))
	}

	raw, ok := lookup(doc, a.cfg.Items).([]any)
	if !ok {
		return nil, source.NewError(source.KindParse, a.cfg.ID, fmt.Errorf("no item array at %q", a.cfg.Items))
	}

	articles := make([]news.Article, 0, len(raw))
	for _, item := range raw {
		if a.cfg.Limit > 0 && len(articles) >= a.cfg.Limit {
			break
		}
		if art, ok := a.convert(item); ok {
			articles = append(articles, art)
		}
	}
	return articles, nil
}

func (a *Adapter) convert(item any) (news.Article, bool) {
	f := a.cfg.Fields
	title := strings.TrimSpace(str(lookup(item, f.Title)))
	link := strings.TrimSpace(str(lookup(item, f.URL)))
	if title == "" || link == "" {
		return news.Article{}, false
	}

	art := news.Article{
		URL:       link,
		Title:     source.PlainText(title),
		SourceID:  a.cfg.ID,
		Category:  a.cfg.Category,
		Language:  a.cfg.Language,
		Summary:   source.Truncate(source.PlainText(str(lookup(item, f.Summary))), summaryRunes),
		Author:    str(lookup(item, f.Author)),
		Published: timestamp(lookup(item, f.Published)),
		Tags:      strs(lookup(item, f.Tags)),
	}
	if f.Discussion != "" {
		if d := str(lookup(item, f.Discussion)); d != "" {
			if !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://") {
				d = a.cfg.DiscussionPrefix + d
			}
			art.DiscussionURL = d
		}
	}
	return art, true
}

// lookup walks a dotted path through nested objects. Numeric segments
// index arrays.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			v = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func strs(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := strings.TrimSpace(str(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}

// timestamp accepts RFC 3339 style strings and Unix seconds or
// milliseconds.
func timestamp(v any) time.Time {
	switch x := v.(type) {
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return unix(n)
		}
		return source.ParseTime(x)
	case float64:
		return unix(int64(x))
	default:
		return time.Time{}
	}
}

func unix(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
