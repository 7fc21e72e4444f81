// Package netpolicy centralizes retry/backoff decisions so the validators
// and the search provider both wait the same way. The token pool parses
// Retry-After on its own and does not use this package.
package netpolicy

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// IsSafeMethod reports whether method is idempotent enough to retry.
func IsSafeMethod(method string) bool {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// RetryAfterDelay parses a Retry-After header, either as seconds or as an
// HTTP-date, returning ok=false if the header is absent or unparseable.
func RetryAfterDelay(headers http.Header) (time.Duration, bool) {
	if headers == nil {
		return 0, false
	}
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0, true
		}
		return d, true
	}
	return 0, false
}

// BackoffJitterDelay returns a jittered exponential delay for the given
// attempt number (1-based), capped at 3s.
func BackoffJitterDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := 300 * time.Millisecond
	delay := base * time.Duration(1<<(attempt-1))
	if delay > 3*time.Second {
		delay = 3 * time.Second
	}
	if delay <= 1*time.Millisecond {
		return delay
	}
	min := delay / 2
	jitter := time.Duration(rand.Int63n(int64(delay-min) + 1))
	return min + jitter
}

// MaxRetryAfterWait is the longest a single retry will honor an issuing
// service's Retry-After header. Validator endpoints (GitHub, OpenAI,
// Anthropic, and the rest of the builtin set) are only ever retried once on
// a 429, so this doubles as the "retry once, capped at 60s, then Error"
// policy for validator rate limiting, and as the search provider's ceiling
// on a single paced retry.
const MaxRetryAfterWait = 60 * time.Second

// RetryDelay prefers a Retry-After header, capped at MaxRetryAfterWait, over
// the jittered backoff.
func RetryDelay(attempt int, headers http.Header) time.Duration {
	if d, ok := RetryAfterDelay(headers); ok {
		if d < 0 {
			return 0
		}
		if d > MaxRetryAfterWait {
			return MaxRetryAfterWait
		}
		return d
	}
	return BackoffJitterDelay(attempt)
}

// SleepForRetry blocks for RetryDelay(attempt, headers) or until ctx is
// cancelled, whichever comes first.
func SleepForRetry(ctx context.Context, attempt int, headers http.Header) error {
	d := RetryDelay(attempt, headers)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetryableNetwork reports whether a transport-level failure on method
// should be retried. Only safe methods are retried at this layer; the
// search provider's own fetches and the validators' identity checks are
// always GETs.
func IsRetryableNetwork(method string) bool {
	return IsSafeMethod(method)
}

// IsRetryableHTTP reports whether a completed HTTP response should be
// retried: 429/502/503/504 always; 403 only when it looks like a rate
// limit rather than an authorization failure.
func IsRetryableHTTP(method string, statusCode int, headers http.Header, body string) bool {
	if !IsSafeMethod(method) {
		return false
	}
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	if statusCode == http.StatusForbidden {
		if headers != nil && strings.TrimSpace(headers.Get("X-RateLimit-Remaining")) == "0" {
			return true
		}
		lower := strings.ToLower(body)
		if strings.Contains(lower, "secondary rate limit") || strings.Contains(lower, "abuse") {
			return true
		}
	}
	return statusCode >= 500
}
