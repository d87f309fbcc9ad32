package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newscrawl/internal/news"
)

// Filter applies the category, source, language, age, tag, author and
// keyword filters of req. Order is preserved. With a Since window, articles
// without a publish time are dropped. With a language filter, articles of
// unknown language are dropped.
//
// Source, tag and author filters match case-insensitive substrings; a list
// matches if any entry does. Search keeps articles whose title or summary
// contains it and Exclude drops them.
func Filter(articles []news.Article, req Request, now time.Time) []news.Article {
	include := set(req.Categories)
	exclude := set(req.ExcludeCategories)
	langs := set(req.Languages)
	noSources := lowered(req.ExcludeSources)
	tags := lowered(req.Tags)
	noTags := lowered(req.ExcludeTags)
	authors := lowered(req.Authors)
	noAuthors := lowered(req.ExcludeAuthors)
	search := strings.ToLower(strings.TrimSpace(req.Search))
	drop := strings.ToLower(strings.TrimSpace(req.Exclude))
	var cutoff time.Time
	if req.Since > 0 {
		cutoff = now.Add(-req.Since)
	}

	out := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		cat := news.NormalizeCategory(a.Category)
		if len(include) > 0 && !include[cat] {
			continue
		}
		if exclude[cat] {
			continue
		}
		if containsAny(a.SourceID, noSources) {
			continue
		}
		if len(langs) > 0 && !langs[strings.ToLower(a.Language)] {
			continue
		}
		if !cutoff.IsZero() && (a.Published.IsZero() || a.Published.Before(cutoff)) {
			continue
		}
		if len(tags) > 0 && !anyContainsAny(a.Tags, tags) {
			continue
		}
		if anyContainsAny(a.Tags, noTags) {
			continue
		}
		if len(authors) > 0 && !containsAny(a.Author, authors) {
			continue
		}
		if containsAny(a.Author, noAuthors) {
			continue
		}
		text := strings.ToLower(a.Title + " " + a.Summary)
		if search != "" && !strings.Contains(text, search) {
			continue
		}
		if drop != "" && strings.Contains(text, drop) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// MinQuality drops articles whose effective quality is below min. It runs
// on scored articles.
func MinQuality(articles []news.Article, min float64) []news.Article {
	out := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		if a.Quality < min {
			continue
		}
		out = append(out, a)
	}
	return out
}

// MinSources keeps stories reported by at least n distinct sources. It runs
// after deduplication.
func MinSources(articles []news.Article, n int) []news.Article {
	out := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		if max(a.SourceCount, 1) < n {
			continue
		}
		out = append(out, a)
	}
	return out
}

// MinRelevance drops articles whose relevance is below min. Articles
// without a relevance value are kept.
func MinRelevance(articles []news.Article, min float64) []news.Article {
	out := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		if a.Relevance != nil && *a.Relevance < min {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ParseSince reads a look-back window such as "90m", "6h", "2d" or "1w".
func ParseSince(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}
	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[:len(s)-1]))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid since %q", s)
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid since %q", s)
	}
	return d, nil
}

func set(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = true
		}
	}
	return out
}

func lowered(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	if len(subs) == 0 || s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func anyContainsAny(values, subs []string) bool {
	for _, v := range values {
		if containsAny(v, subs) {
			return true
		}
	}
	return false
}
