package news_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deusflow/newscrawl/internal/news"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strip www", "https://www.example.com/a", "https://example.com/a"},
		{"strip trailing slash", "https://example.com/a/b/", "https://example.com/a/b"},
		{"keep root", "https://example.com/", "https://example.com/"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
		{"strip fragment", "https://example.com/a#top", "https://example.com/a"},
		{"strip utm params", "https://example.com/a?utm_source=x&utm_medium=y&id=3", "https://example.com/a?id=3"},
		{"strip click ids", "https://example.com/a?fbclid=1&gclid=2", "https://example.com/a"},
		{"sort query", "https://example.com/a?z=1&b=2", "https://example.com/a?b=2&z=1"},
		{"default port", "http://example.com:80/a", "http://example.com/a"},
		{"keep custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"relative input", "  Not-A-URL ", "not-a-url"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, news.Canonicalize(tt.input))
		})
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", news.Domain("https://www.Example.com:8080/x"))
	assert.Equal(t, "", news.Domain("nope"))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "hello world 2025", news.NormalizeTitle("  Hello, World!!  2025 "))
	assert.Equal(t, "it s here", news.NormalizeTitle("It's here"))
	assert.Equal(t, "", news.NormalizeTitle("?!"))
}

func TestIdentities(t *testing.T) {
	a := news.Article{Title: "Big News!", URL: "https://www.example.com/story/?utm_source=rss", Category: "Tech"}
	b := news.Article{Title: "big news", URL: "https://example.com/story", Category: "tech"}

	assert.Equal(t, a.URLKey(), b.URLKey())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Identities(), 2)

	c := b
	c.Category = "science"
	assert.NotEqual(t, b.Fingerprint(), c.Fingerprint())
}

func TestContentHashRequiresBody(t *testing.T) {
	a := news.Article{Title: "Same"}
	assert.Empty(t, a.ContentHash())

	a.Summary = "Body text."
	b := news.Article{Title: "same", Summary: "body   text"}
	assert.NotEmpty(t, a.ContentHash())
	assert.Equal(t, a.ContentHash(), b.ContentHash())
}

func TestPrepare(t *testing.T) {
	a := news.Article{Title: "x", URL: "https://www.example.com/a/", Sources: []string{"b", "a"}}
	got := a.Prepare("c", "")

	assert.Equal(t, "c", got.SourceID)
	assert.Equal(t, news.DefaultCategory, got.Category)
	assert.Equal(t, "https://example.com/a", got.CanonicalURL)
	assert.Equal(t, []string{"a", "b", "c"}, got.Sources)
	assert.Equal(t, 3, got.SourceCount)
}

func TestPrepareNormalizesAdapterCanonical(t *testing.T) {
	a := news.Article{Title: "x", URL: "https://feeds.example.com/item/9",
		CanonicalURL: "HTTPS://WWW.X.com/a/?utm_source=rss"}
	got := a.Prepare("c", "world")
	assert.Equal(t, "https://x.com/a", got.CanonicalURL)

	plain := news.Article{Title: "x", URL: "https://x.com/a"}
	assert.Equal(t, plain.URLKey(), got.URLKey())
	assert.Equal(t, plain.URLKey(), a.URLKey())
}
