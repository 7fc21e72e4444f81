package netpolicy

import (
	"net/http"
	"testing"
	"time"
)

func TestRetryAfterDelaySeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	d, ok := RetryAfterDelay(h)
	if !ok || d != 7*time.Second {
		t.Fatalf("expected 7s, got %v ok=%v", d, ok)
	}
}

func TestRetryAfterDelayHTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(5*time.Second).UTC().Format(http.TimeFormat))
	d, ok := RetryAfterDelay(h)
	if !ok {
		t.Fatalf("expected HTTP-date to parse")
	}
	if d <= 0 || d > 6*time.Second {
		t.Fatalf("expected delay near 5s, got %v", d)
	}
}

func TestRetryDelayCapsRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3600")
	if d := RetryDelay(1, h); d != MaxRetryAfterWait {
		t.Fatalf("expected cap at %v, got %v", MaxRetryAfterWait, d)
	}
}

func TestRetryDelayZeroRetryAfterRetriesImmediately(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "0")
	if d := RetryDelay(1, h); d != 0 {
		t.Fatalf("expected immediate retry on Retry-After: 0, got %v", d)
	}
}

func TestIsRetryableHTTP(t *testing.T) {
	cases := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   bool
	}{
		{name: "429", status: http.StatusTooManyRequests, want: true},
		{name: "503", status: http.StatusServiceUnavailable, want: true},
		{name: "401", status: http.StatusUnauthorized, want: false},
		{name: "403 plain", status: http.StatusForbidden, want: false},
		{name: "403 secondary rate limit", status: http.StatusForbidden, body: "You have exceeded a secondary rate limit", want: true},
	}
	for _, tc := range cases {
		if got := IsRetryableHTTP(http.MethodGet, tc.status, tc.header, tc.body); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPostIsNeverRetried(t *testing.T) {
	if IsRetryableHTTP(http.MethodPost, http.StatusServiceUnavailable, nil, "") {
		t.Fatalf("expected POST to never be retryable")
	}
}
