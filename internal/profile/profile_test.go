package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/profile"
)

const sample = `
name: tester
interests:
  - keywords: [golang, rust]
    weight: 2.0
  - keywords: [skate]
`

func writeProfile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	p, err := profile.Load(writeProfile(t))
	require.NoError(t, err)

	assert.Equal(t, "tester", p.Name)
	require.Len(t, p.Interests, 2)
	assert.Equal(t, 1.0, p.Interests[1].Weight)
}

func TestLoadMissing(t *testing.T) {
	_, err := profile.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRaw(t *testing.T) {
	p, err := profile.Load(writeProfile(t))
	require.NoError(t, err)

	assert.Equal(t, 0.0, p.Raw(news.Article{Title: "Weather today"}))
	assert.InDelta(t, 2.0, p.Raw(news.Article{Title: "Golang 2 released"}), 1e-9)
	assert.InDelta(t, 2.0*1.3, p.Raw(news.Article{Title: "Golang vs Rust"}), 1e-9)
	assert.InDelta(t, 2.6+1.0, p.Raw(news.Article{Title: "Golang vs Rust", Summary: "at the skate park"}), 1e-9)
}

func TestAnnotateNormalizes(t *testing.T) {
	p, err := profile.Load(writeProfile(t))
	require.NoError(t, err)

	keep := 0.9
	in := []news.Article{
		{Title: "Golang vs Rust"},
		{Title: "Golang tips"},
		{Title: "Nothing here"},
		{Title: "Rust", Relevance: &keep},
	}
	out := p.Annotate(in)

	require.NotNil(t, out[0].Relevance)
	assert.InDelta(t, 1.0, *out[0].Relevance, 1e-9)
	assert.InDelta(t, 2.0/2.6, *out[1].Relevance, 1e-9)
	assert.Equal(t, 0.0, *out[2].Relevance)
	assert.Equal(t, 0.9, *out[3].Relevance)
	assert.Nil(t, in[0].Relevance)
}
