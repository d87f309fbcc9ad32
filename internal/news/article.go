package news

import (
	"sort"
	"time"
)

// DefaultCategory is assigned to articles whose source does not declare one.
const DefaultCategory = "general"

// Article is a single piece of content observed from one source.
//
// Quality, Recency, Relevance and Score are derived fields written by the
// scoring package; Score is always recomputed from the other three and is
// never edited on its own.
type Article struct {
	URL           string    `json:"url"`
	CanonicalURL  string    `json:"canonical_url"`
	Title         string    `json:"title"`
	SourceID      string    `json:"source"`
	Category      string    `json:"category"`
	Published     time.Time `json:"published"`
	Summary       string    `json:"summary,omitempty"`
	Author        string    `json:"author,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	DiscussionURL string    `json:"discussion_url,omitempty"`
	Language      string    `json:"language,omitempty"`
	Sentiment     string    `json:"sentiment,omitempty"`

	Quality     float64  `json:"quality"`
	Recency     float64  `json:"recency"`
	Relevance   *float64 `json:"relevance,omitempty"`
	Score       float64  `json:"score"`
	SourceCount int      `json:"source_count"`
	Sources     []string `json:"sources,omitempty"`
}

// Prepare fills the identity fields an adapter may have left empty and
// returns the updated copy. An adapter-supplied canonical URL is normalized
// like any other.
func (a Article) Prepare(sourceID, category string) Article {
	if a.SourceID == "" {
		a.SourceID = sourceID
	}
	if a.Category == "" {
		a.Category = category
	}
	if a.Category == "" {
		a.Category = DefaultCategory
	}
	if a.CanonicalURL != "" {
		a.CanonicalURL = Canonicalize(a.CanonicalURL)
	} else {
		a.CanonicalURL = Canonicalize(a.URL)
	}
	if !a.Published.IsZero() {
		a.Published = a.Published.UTC()
	}
	a.Tags = dedupeStrings(a.Tags, false)
	a.Sources = Contributors(a)
	a.SourceCount = len(a.Sources)
	return a
}

// Contributors returns the distinct source ids that reported the article,
// including its own source.
func Contributors(a Article) []string {
	ids := make([]string, 0, len(a.Sources)+1)
	ids = append(ids, a.Sources...)
	if a.SourceID != "" {
		ids = append(ids, a.SourceID)
	}
	return dedupeStrings(ids, true)
}

// URLKey identifies an article by its canonical URL.
func (a Article) URLKey() string {
	u := a.CanonicalURL
	if u == "" {
		u = a.URL
	}
	u = Canonicalize(u)
	if u == "" {
		return ""
	}
	return hashParts(u)
}

// ContentHash identifies an article by its normalized title and body.
// Articles without a summary have no content hash.
func (a Article) ContentHash() string {
	body := NormalizeText(a.Summary)
	title := NormalizeTitle(a.Title)
	if body == "" || title == "" {
		return ""
	}
	return hashParts(title, body)
}

// Fingerprint is the normalized-title-plus-category identity.
func (a Article) Fingerprint() string {
	title := NormalizeTitle(a.Title)
	if title == "" {
		return ""
	}
	return hashParts(title, NormalizeCategory(a.Category))
}

// Identities returns the stable keys used by the seen-history store.
func (a Article) Identities() []string {
	ids := make([]string, 0, 2)
	if k := a.URLKey(); k != "" {
		ids = append(ids, k)
	}
	if fp := a.Fingerprint(); fp != "" {
		ids = append(ids, fp)
	}
	return ids
}

func dedupeStrings(in []string, sorted bool) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if sorted {
		sort.Strings(out)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
