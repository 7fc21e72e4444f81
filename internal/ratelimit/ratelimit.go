// Package ratelimit gives each validator key type its own pacing gate so
// one slow or chatty service never steals budget from another.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gates holds one rate.Limiter per key type, created lazily with a
// per-type default and overridable per name.
type Gates struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	defaults map[string]time.Duration
	fallback time.Duration
}

// NewGates builds a Gates set. defaults maps key_type -> minimum interval
// between validator calls; fallback applies to any key_type absent from
// defaults.
func NewGates(defaults map[string]time.Duration, fallback time.Duration) *Gates {
	if fallback <= 0 {
		fallback = time.Second
	}
	return &Gates{
		limiters: map[string]*rate.Limiter{},
		defaults: defaults,
		fallback: fallback,
	}
}

// Acquire blocks until keyType's gate admits the next call, or ctx is
// cancelled.
func (g *Gates) Acquire(ctx context.Context, keyType string) error {
	return g.limiterFor(keyType).Wait(ctx)
}

func (g *Gates) limiterFor(keyType string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[keyType]; ok {
		return l
	}
	interval := g.defaults[keyType]
	if interval <= 0 {
		interval = g.fallback
	}
	l := rate.NewLimiter(rate.Every(interval), 1)
	g.limiters[keyType] = l
	return l
}

// SetInterval overrides the minimum interval between calls for keyType,
// replacing any limiter already created for it (lazily or from defaults).
// An operator's config-file or env-var rate-limit override takes effect the
// next time Acquire is called for that key type.
func (g *Gates) SetInterval(keyType string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiters[keyType] = rate.NewLimiter(rate.Every(interval), 1)
}
