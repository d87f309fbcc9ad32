package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies an adapter failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindTransient
	KindRateLimited
	KindParse
	KindNotFound
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient-network"
	case KindRateLimited:
		return "rate-limited"
	case KindParse:
		return "parse-failure"
	case KindNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// Error is the typed failure returned by adapters.
type Error struct {
	Kind       Kind
	Source     string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind.
func NewError(kind Kind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

// KindOf returns the kind of err, classifying untyped errors on the fly.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Classify(err).Kind
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// Classify converts an arbitrary error into an *Error. Context deadlines and
// network timeouts become KindTimeout, other network errors KindTransient and
// everything else is treated as a terminal parse failure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Err: err}
		}
		return &Error{Kind: KindTransient, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindTransient, Err: err}
	}
	return &Error{Kind: KindParse, Err: err}
}

// FromStatus maps an HTTP status code to an *Error, or nil for 2xx.
func FromStatus(source string, resp *http.Response) *Error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	e := &Error{Source: source, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case resp.StatusCode >= 500:
		e.Kind = KindTransient
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		e.Kind = KindNotFound
	default:
		e.Kind = KindParse
	}
	return e
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
