package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls how often and how patiently an operation is retried.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	Jitter      float64       // extra random share of each delay, in [0,1]
	MaxDelay    time.Duration // cap for a single delay, 0 means uncapped
}

// Delay returns the pause after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), plus up to Jitter of that value when rnd is set.
func (c RetryConfig) Delay(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.BaseDelay) * math.Pow(2, float64(attempt-1))
	if c.Jitter > 0 && rnd != nil {
		d += d * c.Jitter * rnd()
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// Hooks customise a retry loop. Zero values fall back to real time, a
// shared random source and "retry everything".
type Hooks struct {
	Sleep     func(ctx context.Context, d time.Duration) error
	Rand      func() float64
	Retryable func(err error) bool
	// Backoff may stretch the computed delay, e.g. for rate-limit responses.
	Backoff func(err error, d time.Duration) time.Duration
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, err error, d time.Duration)
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. It returns the number of attempts
// made together with the last error.
func WithRetry(ctx context.Context, config RetryConfig, hooks Hooks, fn func(ctx context.Context, attempt int) error) (int, error) {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if hooks.Sleep == nil {
		hooks.Sleep = sleep
	}
	if hooks.Rand == nil {
		hooks.Rand = rand.Float64
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if hooks.Retryable != nil && !hooks.Retryable(err) {
			return attempt, err
		}
		if attempt == config.MaxAttempts {
			return attempt, fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
		}

		delay := config.Delay(attempt, hooks.Rand)
		if hooks.Backoff != nil {
			delay = hooks.Backoff(err, delay)
		}
		if hooks.OnRetry != nil {
			hooks.OnRetry(attempt, err, delay)
		}
		if sleepErr := hooks.Sleep(ctx, delay); sleepErr != nil {
			return attempt, lastErr
		}
	}

	return config.MaxAttempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
