// Package source defines the capability every news source adapter
// implements and the error kinds the crawler uses to decide on retries.
package source

import (
	"context"

	"github.com/deusflow/newscrawl/internal/news"
)

// Adapter fetches raw articles from one source.
type Adapter interface {
	// ID is the stable source identifier.
	ID() string
	// Category is the default category tag for the source's articles.
	Category() string
	// Domain is the host requests are sent to; it keys rate limiting.
	Domain() string
	// Fetch returns the source's current articles or a *Error.
	Fetch(ctx context.Context) ([]news.Article, error)
}

// Info describes an adapter for diagnostics.
type Info struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Domain   string `json:"domain"`
}

// Describe returns the Info of an adapter.
func Describe(a Adapter) Info {
	return Info{ID: a.ID(), Category: a.Category(), Domain: a.Domain()}
}

// Func adapts a plain function to the Adapter interface.
type Func struct {
	SourceID       string
	SourceCategory string
	Host           string
	FetchFunc      func(ctx context.Context) ([]news.Article, error)
}

func (f Func) ID() string       { return f.SourceID }
func (f Func) Category() string { return f.SourceCategory }
func (f Func) Domain() string   { return f.Host }

func (f Func) Fetch(ctx context.Context) ([]news.Article, error) {
	return f.FetchFunc(ctx)
}
