// Package ratelimit throttles outbound requests per target domain.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config sets the per-domain token bucket.
type Config struct {
	PerSecond float64
	Burst     int
}

type bucket struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	pausedUntil time.Time
}

// DomainLimiter keeps one independent token bucket per domain. Waiting on
// one domain never blocks callers of another.
type DomainLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
	sleep   SleepFunc
}

// New creates a limiter. A non-positive rate disables throttling.
func New(cfg Config) *DomainLimiter {
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &DomainLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		sleep:   Sleep,
	}
}

// WithClock injects the time source and sleep function, for tests.
func (l *DomainLimiter) WithClock(now func() time.Time, sleep SleepFunc) *DomainLimiter {
	l.now = now
	l.sleep = sleep
	return l
}

func (l *DomainLimiter) bucketFor(domain string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[domain]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[domain] = b
	}
	return b
}

// Wait blocks until a request to domain may be sent.
func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	b := l.bucketFor(domain)
	now := l.now()

	b.mu.Lock()
	r := b.limiter.ReserveN(now, 1)
	pause := b.pausedUntil.Sub(now)
	b.mu.Unlock()

	if !r.OK() {
		return fmt.Errorf("rate limit for %s cannot be satisfied", domain)
	}

	delay := r.DelayFrom(now)
	if pause > delay {
		delay = pause
	}
	if delay <= 0 {
		return nil
	}
	if err := l.sleep(ctx, delay); err != nil {
		r.CancelAt(now)
		return err
	}
	return nil
}

// Pause holds every request to domain for d, used after the remote side
// answered with a rate-limit response.
func (l *DomainLimiter) Pause(domain string, d time.Duration) {
	if d <= 0 {
		return
	}
	b := l.bucketFor(domain)
	until := l.now().Add(d)

	b.mu.Lock()
	if until.After(b.pausedUntil) {
		b.pausedUntil = until
	}
	b.mu.Unlock()
}

// Domains returns how many domains currently have throttle state.
func (l *DomainLimiter) Domains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
