// Package profile scores articles against a keyword interest profile.
//
// Profile file format (YAML):
//
//	name: reader
//	interests:
//	  - keywords: [AI, machine learning, LLM]
//	    weight: 2.0
//	  - keywords: [rust, golang]
//	    weight: 1.0
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newscrawl/internal/news"
)

// repeatHitBonus is the extra weight of every additional keyword hit inside
// one interest group.
const repeatHitBonus = 0.3

// Interest is a weighted group of keywords.
type Interest struct {
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// Profile is a named set of interests.
type Profile struct {
	Name      string     `yaml:"name"`
	Interests []Interest `yaml:"interests"`
}

// Load reads a profile from a YAML file.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	var p Profile
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	for i := range p.Interests {
		if p.Interests[i].Weight == 0 {
			p.Interests[i].Weight = 1.0
		}
	}
	return &p, nil
}

// Raw returns the unnormalized interest score of one article.
func (p *Profile) Raw(a news.Article) float64 {
	text := strings.ToLower(a.Title + " " + a.Summary)
	total := 0.0
	for _, in := range p.Interests {
		hits := 0
		for _, kw := range in.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > 0 {
			total += in.Weight * (1 + repeatHitBonus*float64(hits-1))
		}
	}
	return total
}

// Annotate sets Relevance on every article to its raw score divided by the
// best raw score in the batch. Articles that already carry a relevance keep it.
func (p *Profile) Annotate(articles []news.Article) []news.Article {
	if p == nil || len(p.Interests) == 0 {
		return articles
	}

	raw := make([]float64, len(articles))
	maxRaw := 0.0
	for i, a := range articles {
		raw[i] = p.Raw(a)
		if raw[i] > maxRaw {
			maxRaw = raw[i]
		}
	}

	out := make([]news.Article, len(articles))
	for i, a := range articles {
		if a.Relevance == nil {
			rel := 0.0
			if maxRaw > 0 {
				rel = raw[i] / maxRaw
			}
			a.Relevance = &rel
		}
		out[i] = a
	}
	return out
}
