// Package crawl runs source adapters concurrently under a worker limit,
// per-domain rate limits, per-adapter timeouts, retries and an overall
// deadline.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newscrawl/internal/news"
	"github.com/deusflow/newscrawl/internal/retry"
	"github.com/deusflow/newscrawl/internal/source"
)

// ErrDeadlineExceeded marks adapters that did not finish before the crawl
// deadline.
var ErrDeadlineExceeded = errors.New("crawl deadline exceeded")

// Limiter throttles requests per domain.
type Limiter interface {
	Wait(ctx context.Context, domain string) error
	Pause(domain string, d time.Duration)
}

// HealthRecorder receives one terminal outcome per adapter per crawl.
type HealthRecorder interface {
	RecordOutcome(source string, success bool, articleCount int)
}

// Observer is notified of every terminal outcome, e.g. for metrics.
type Observer interface {
	ObserveOutcome(o Outcome)
}

// Config bounds a crawl.
type Config struct {
	Concurrency    int
	AdapterTimeout time.Duration
	Deadline       time.Duration
	Retry          retry.RetryConfig
}

// Outcome is the terminal result of one adapter.
type Outcome struct {
	Source   string        `json:"source"`
	Success  bool          `json:"success"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Articles int           `json:"articles"`
	Kind     string        `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Result is everything a crawl produced.
type Result struct {
	Articles         []news.Article
	Outcomes         []Outcome
	Elapsed          time.Duration
	DeadlineExceeded bool
}

// Succeeded counts successful sources.
func (r Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Failed counts failed sources.
func (r Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Orchestrator drives adapters. It keeps no state between runs.
type Orchestrator struct {
	cfg      Config
	limiter  Limiter
	health   HealthRecorder
	observer Observer
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// New creates an orchestrator. limiter and health may be nil.
func New(cfg Config, limiter Limiter, health HealthRecorder, logger *slog.Logger) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		limiter: limiter,
		health:  health,
		logger:  logger,
		now:     time.Now,
	}
}

// WithObserver registers an outcome observer.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	o.observer = obs
	return o
}

// WithClock injects the time source, the backoff sleep and the jitter
// source, for tests. Nil arguments keep the defaults.
func (o *Orchestrator) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error, rnd func() float64) *Orchestrator {
	if now != nil {
		o.now = now
	}
	o.sleep = sleep
	o.rand = rnd
	return o
}

// Run invokes every adapter and returns the union of the articles that
// were fetched plus one outcome per adapter, sorted by source id. Adapter
// failures never fail the crawl.
func (o *Orchestrator) Run(ctx context.Context, adapters []source.Adapter) Result {
	start := o.now()

	crawlCtx := ctx
	if o.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, o.cfg.Deadline)
		defer cancel()
	}

	outcomes := make([]Outcome, len(adapters))
	fetched := make([][]news.Article, len(adapters))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for i, a := range adapters {
		g.Go(func() error {
			outcomes[i], fetched[i] = o.runAdapter(crawlCtx, a)
			return nil
		})
	}
	_ = g.Wait()

	order := make([]int, len(adapters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return outcomes[order[i]].Source < outcomes[order[j]].Source
	})

	res := Result{
		Outcomes:         make([]Outcome, 0, len(adapters)),
		Elapsed:          o.now().Sub(start),
		DeadlineExceeded: errors.Is(crawlCtx.Err(), context.DeadlineExceeded),
	}
	for _, i := range order {
		res.Outcomes = append(res.Outcomes, outcomes[i])
		res.Articles = append(res.Articles, fetched[i]...)
	}

	o.logger.Info("crawl finished",
		"sources", len(adapters),
		"succeeded", res.Succeeded(),
		"failed", res.Failed(),
		"articles", len(res.Articles),
		"elapsed", res.Elapsed.Round(time.Millisecond),
		"deadline_exceeded", res.DeadlineExceeded)
	return res
}

func (o *Orchestrator) runAdapter(ctx context.Context, a source.Adapter) (Outcome, []news.Article) {
	id := a.ID()
	began := o.now()
	out := Outcome{Source: id}

	var articles []news.Article
	var err error
	if ctx.Err() != nil {
		err = source.NewError(source.KindTimeout, id, ErrDeadlineExceeded)
	} else {
		out.Attempts, err = retry.WithRetry(ctx, o.cfg.Retry, retry.Hooks{
			Sleep: o.sleep,
			Rand:  o.rand,
			Retryable: func(err error) bool {
				return ctx.Err() == nil && source.IsRetryable(err)
			},
			Backoff: func(err error, d time.Duration) time.Duration {
				return o.backoff(a, err, d)
			},
			OnRetry: func(attempt int, err error, d time.Duration) {
				o.logger.Warn("retrying source",
					"source", id, "attempt", attempt, "delay", d, "err", err)
			},
		}, func(ctx context.Context, _ int) error {
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx, a.Domain()); err != nil {
					return source.NewError(source.KindTimeout, id, err)
				}
			}
			got, err := o.fetch(ctx, a)
			if err != nil {
				return err
			}
			articles = got
			return nil
		})
	}

	out.Elapsed = o.now().Sub(began)
	if err == nil {
		out.Success = true
		for i := range articles {
			articles[i] = articles[i].Prepare(id, a.Category())
		}
		out.Articles = len(articles)
	} else {
		kind := source.KindOf(err)
		if ctx.Err() != nil {
			kind = source.KindTimeout
			if !errors.Is(err, ErrDeadlineExceeded) {
				err = fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
			}
		}
		out.Kind = kind.String()
		out.Error = err.Error()
		articles = nil
		o.logger.Warn("source failed",
			"source", id, "kind", out.Kind, "attempts", out.Attempts, "err", err)
	}

	if o.health != nil {
		o.health.RecordOutcome(id, out.Success, out.Articles)
	}
	if o.observer != nil {
		o.observer.ObserveOutcome(out)
	}
	return out, articles
}

// fetch runs one adapter call under the adapter timeout. An adapter that
// ignores cancellation is abandoned when the timeout fires.
func (o *Orchestrator) fetch(ctx context.Context, a source.Adapter) ([]news.Article, error) {
	if o.cfg.AdapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.AdapterTimeout)
		defer cancel()
	}

	type reply struct {
		articles []news.Article
		err      error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: source.NewError(source.KindUnknown, a.ID(), fmt.Errorf("adapter panic: %v", r))}
			}
		}()
		articles, err := a.Fetch(ctx)
		ch <- reply{articles: articles, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.articles, nil
		}
		if ctx.Err() != nil {
			return nil, source.NewError(source.KindTimeout, a.ID(), r.err)
		}
		return nil, asSourceError(a.ID(), r.err)
	case <-ctx.Done():
		return nil, source.NewError(source.KindTimeout, a.ID(), ctx.Err())
	}
}

// backoff doubles the delay after a rate-limited response, honours a
// longer Retry-After and pauses the domain for the same time.
func (o *Orchestrator) backoff(a source.Adapter, err error, d time.Duration) time.Duration {
	var se *source.Error
	if !errors.As(err, &se) || se.Kind != source.KindRateLimited {
		return d
	}
	d *= 2
	if se.RetryAfter > d {
		d = se.RetryAfter
	}
	if o.limiter != nil {
		o.limiter.Pause(a.Domain(), d)
	}
	return d
}

func asSourceError(id string, err error) error {
	var se *source.Error
	if errors.As(err, &se) {
		if se.Source == "" {
			se.Source = id
		}
		return err
	}
	se = source.Classify(err)
	se.Source = id
	return se
}
