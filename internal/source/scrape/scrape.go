// Package scrape is the HTML listing-page source adapter. Items are
// located with CSS selectors.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/source"
)

const summaryRunes = 500

// Selectors locate the parts of each listing entry. Item is matched
// against the whole page, the rest inside each item. Empty Link means
// the item itself (or its first anchor) carries the href.
type Selectors struct {
	Item    []string `yaml:"item" json:"item"`
	Title   string   `yaml:"title" json:"title"`
	Link    string   `yaml:"link" json:"link"`
	Summary string   `yaml:"summary" json:"summary"`
	Time    string   `yaml:"time" json:"time"`
	Author  string   `yaml:"author" json:"author"`
	// TimeAttr is read from the Time element; its text is used if the
	// attribute is missing.
	TimeAttr string `yaml:"time_attr" json:"time_attr"`
}

// DefaultSelectors fit most article listing pages.
var DefaultSelectors = Selectors{
	Item:     []string{"article", ".article", ".story", "li.item"},
	Title:    "h1, h2, h3, .title",
	Summary:  "p, .summary, .teaser",
	Time:     "time",
	TimeAttr: "datetime",
}

// Config describes one scraped page.
type Config struct {
	ID        string
	URL       string
	Category  string
	Language  string
	Limit     int
	Selectors Selectors
}

// Adapter scrapes one listing page.
type Adapter struct {
	cfg    Config
	base   *url.URL
	client *http.Client
}

var _ source.Adapter = (*Adapter)(nil)

// New creates a scrape adapter. Selector fields left empty take the
// DefaultSelectors value.
func New(cfg Config, client *http.Client) *Adapter {
	if client == nil {
		client = source.DefaultClient(0)
	}
	cfg.Selectors = withDefaults(cfg.Selectors)
	base, _ := url.Parse(cfg.URL)
	return &Adapter{cfg: cfg, base: base, client: client}
}

func withDefaults(s Selectors) Selectors {
	if len(s.Item) == 0 {
		s.Item = DefaultSelectors.Item
	}
	if s.Title == "" {
		s.Title = DefaultSelectors.Title
	}
	if s.Summary == "" {
		s.Summary = DefaultSelectors.Summary
	}
	if s.Time == "" {
		s.Time = DefaultSelectors.Time
	}
	if s.TimeAttr == "" {
		s.TimeAttr = DefaultSelectors.TimeAttr
	}
	return s
}

func (a *Adapter) ID() string       { return a.cfg.ID }
func (a *Adapter) Category() string { return a.cfg.Category }
func (a *Adapter) Domain() string   { return news.Domain(a.cfg.URL) }

// Fetch downloads the page and extracts one article per matched item.
// A page where no item selector matches is reported as a parse failure.
func (a *Adapter) Fetch(ctx context.Context) ([]news.Article, error) {
	body, err := source.Get(ctx, a.client, a.cfg.ID, a.cfg.URL, "text/html, application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, source.NewError(source.KindParse, a.cfg.ID, fmt.Errorf("parse html: %w", err))
	}

	var items *goquery.Selection
	for _, sel := range a.cfg.Selectors.Item {
		if found := doc.Find(sel); found.Length() > 0 {
			items = found
			break
		}
	}
	if items == nil {
		return nil, source.NewError(source.KindParse, a.cfg.ID,
			fmt.Errorf("no items match %q", strings.Join(a.cfg.Selectors.Item, ", ")))
	}

	lang := a.cfg.Language
	if lang == "" {
		lang, _ = doc.Find("html").Attr("lang")
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		lang = strings.ToLower(lang)
	}

	var articles []news.Article
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if a.cfg.Limit > 0 && len(articles) >= a.cfg.Limit {
			return false
		}
		if art, ok := a.extract(s); ok {
			art.Language = lang
			articles = append(articles, art)
		}
		return true
	})
	return articles, nil
}

func (a *Adapter) extract(s *goquery.Selection) (news.Article, bool) {
	sel := a.cfg.Selectors

	title := cleanText(s.Find(sel.Title).First().Text())
	href := a.link(s)
	if title == "" || href == "" {
		return news.Article{}, false
	}

	art := news.Article{
		URL:      href,
		Title:    title,
		SourceID: a.cfg.ID,
		Category: a.cfg.Category,
		Summary:  source.Truncate(cleanText(s.Find(sel.Summary).First().Text()), summaryRunes),
	}
	if sel.Author != "" {
		art.Author = cleanText(s.Find(sel.Author).First().Text())
	}

	t := s.Find(sel.Time).First()
	if v, ok := t.Attr(sel.TimeAttr); ok {
		art.Published = source.ParseTime(v)
	} else {
		art.Published = source.ParseTime(t.Text())
	}
	return art, true
}

func (a *Adapter) link(s *goquery.Selection) string {
	var anchor *goquery.Selection
	switch {
	case a.cfg.Selectors.Link != "":
		anchor = s.Find(a.cfg.Selectors.Link).First()
	case goquery.NodeName(s) == "a":
		anchor = s
	default:
		anchor = s.Find("a[href]").First()
	}
	href, ok := anchor.Attr("href")
	if !ok {
		return ""
	}
	return a.resolve(strings.TrimSpace(href))
}

func (a *Adapter) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if a.base == nil {
		return ref.String()
	}
	return a.base.ResolveReference(ref).String()
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
