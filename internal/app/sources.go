package app

import (
	"fmt"
	"net/http"

	"github.com/deusflow/newscrawl/internal/config"
	"github.com/deusflow/newscrawl/internal/source"
	"github.com/deusflow/newscrawl/internal/source/jsonapi"
	"github.com/deusflow/newscrawl/internal/source/rss"
	"github.com/deusflow/newscrawl/internal/source/scrape"
)

// BuildAdapters creates one adapter per source config. All adapters share
// client.
func BuildAdapters(sources []config.SourceConfig, client *http.Client) ([]source.Adapter, error) {
	out := make([]source.Adapter, 0, len(sources))
	for _, s := range sources {
		a, err := buildAdapter(s, client)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func buildAdapter(s config.SourceConfig, client *http.Client) (source.Adapter, error) {
	switch s.Type {
	case config.TypeRSS:
		return rss.New(rss.Config{
			ID:       s.ID,
			URL:      s.URL,
			Category: s.Category,
			Language: s.Language,
			Limit:    s.Limit,
		}, client), nil
	case config.TypeHTML:
		return scrape.New(scrape.Config{
			ID:        s.ID,
			URL:       s.URL,
			Category:  s.Category,
			Language:  s.Language,
			Limit:     s.Limit,
			Selectors: s.Selectors,
		}, client), nil
	case config.TypeJSON:
		return jsonapi.New(jsonapi.Config{
			ID:               s.ID,
			URL:              s.URL,
			Category:         s.Category,
			Language:         s.Language,
			Limit:            s.Limit,
			Items:            s.Items,
			Fields:           s.Fields,
			DiscussionPrefix: s.DiscussionPrefix,
		}, client), nil
	default:
		return nil, fmt.Errorf("source %q: unsupported type %q", s.ID, s.Type)
	}
}
