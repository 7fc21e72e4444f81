// Package tokenpool manages a small set of search-API tokens, leasing one
// at a time to callers and rotating past whichever token is currently
// cooling down from a rate-limit response.
package tokenpool

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"keyhunter/internal/errs"
)

// Slot is one bearer token plus its pacing state.
type Slot struct {
	Token string

	earliestNextUse time.Time
	cooldownUntil   time.Time
	invalid         bool
	leased          bool
}

// Pool leases search tokens, enforcing a minimum interval between uses of
// any one token and suspending callers until a token becomes ready.
type Pool struct {
	mu          sync.Mutex
	slots       []*Slot
	minInterval time.Duration
}

// New builds a Pool from the given raw token strings. minInterval is the
// default pacing applied to a token after a successful request that carries
// no explicit rate-limit headers.
func New(tokens []string, minInterval time.Duration) *Pool {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	p := &Pool{minInterval: minInterval}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		p.slots = append(p.slots, &Slot{Token: t})
	}
	return p
}

// Len reports how many usable (non-invalidated) slots remain.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if !s.invalid {
			n++
		}
	}
	return n
}

// Lease blocks until a token slot is ready for use, or ctx is cancelled, or
// every slot has been permanently invalidated. The returned slot is marked
// leased until the caller passes it to Release, so at most one caller ever
// holds a given slot at a time.
func (p *Pool) Lease(ctx context.Context) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.Cancelled, "lease cancelled", ctx.Err())
		}
		ready, wait, anyUsable := p.pickLocked()
		if ready != nil {
			ready.leased = true
			return ready, nil
		}
		if !anyUsable {
			return nil, errs.New(errs.Unauthorized, "no usable search tokens remain")
		}
		p.waitLocked(ctx, wait)
	}
}

// pickLocked returns the slot with the earliest ready time if one is ready
// and not already leased to another caller, otherwise the duration until
// the next unleased slot becomes ready. Slots currently leased never
// contribute a usable wait estimate, since their next-ready time is
// unknown until Release runs; waitLocked falls back to a short poll in
// that case.
func (p *Pool) pickLocked() (ready *Slot, wait time.Duration, anyUsable bool) {
	now := time.Now()
	var soonest time.Time
	for _, s := range p.slots {
		if s.invalid {
			continue
		}
		anyUsable = true
		if s.leased {
			continue
		}
		if s.earliestNextUse.IsZero() || !s.earliestNextUse.After(now) {
			if ready == nil || s.earliestNextUse.Before(ready.earliestNextUse) {
				ready = s
			}
			continue
		}
		if soonest.IsZero() || s.earliestNextUse.Before(soonest) {
			soonest = s.earliestNextUse
		}
	}
	if ready != nil {
		return ready, 0, true
	}
	if !anyUsable {
		return nil, 0, false
	}
	if soonest.IsZero() {
		return nil, 10 * time.Millisecond, true
	}
	return nil, time.Until(soonest), true
}

func (p *Pool) waitLocked(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = 10 * time.Millisecond
	}
	p.mu.Unlock()
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
	p.mu.Lock()
}

// Release updates a slot's pacing state after a request completes.
// statusCode and headers describe the HTTP response that used the token;
// pass statusCode 0 and nil headers for a transport-level failure.
func (p *Pool) Release(slot *Slot, statusCode int, headers http.Header) {
	if slot == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	slot.leased = false

	now := time.Now()
	switch {
	case statusCode == http.StatusUnauthorized:
		slot.invalid = true
		return
	case statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests:
		if d := retryAfter(headers); d > 0 {
			slot.cooldownUntil = now.Add(d)
			slot.earliestNextUse = slot.cooldownUntil
			return
		}
		if reset := rateLimitReset(headers); !reset.IsZero() {
			slot.cooldownUntil = reset
			slot.earliestNextUse = reset
			return
		}
		slot.cooldownUntil = now.Add(p.minInterval)
		slot.earliestNextUse = slot.cooldownUntil
	default:
		if reset := rateLimitReset(headers); !reset.IsZero() && remainingIsZero(headers) {
			slot.earliestNextUse = reset
			return
		}
		slot.earliestNextUse = now.Add(p.minInterval)
	}
}

func remainingIsZero(headers http.Header) bool {
	if headers == nil {
		return false
	}
	return strings.TrimSpace(headers.Get("X-RateLimit-Remaining")) == "0"
}

func rateLimitReset(headers http.Header) time.Time {
	if headers == nil {
		return time.Time{}
	}
	raw := strings.TrimSpace(headers.Get("X-RateLimit-Reset"))
	if raw == "" {
		return time.Time{}
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(epoch, 0)
}

func retryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		return time.Until(when)
	}
	return 0
}
