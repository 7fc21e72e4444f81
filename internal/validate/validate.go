// Package validate implements the validator registry and the built-in
// validators that confirm a candidate credential against its issuing
// service's live API.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"keyhunter/internal/errs"
	"keyhunter/internal/httpx"
	"keyhunter/internal/model"
	"keyhunter/internal/netpolicy"
	"keyhunter/internal/ratelimit"
)

// Validator confirms one candidate credential against its issuing service.
type Validator interface {
	KeyType() string
	RateLimit() time.Duration
	Validate(ctx context.Context, key string) (model.ValidationResult, error)
}

// endpointSpec describes one service's cheapest authenticated identity
// check, data-driven the same way detect.Spec drives detectors.
type endpointSpec struct {
	keyType     string
	aliases     []string
	rateLimit   time.Duration
	method      string
	url         string
	authHeader  func(key string) (name, value string)
	extraHeader map[string]string
	parseMeta   func(body []byte) map[string]string
}

func (e *endpointSpec) KeyType() string          { return e.keyType }
func (e *endpointSpec) RateLimit() time.Duration { return e.rateLimit }

// Validate calls the endpoint once, retrying a single time on 429 per the
// retry-once-then-error policy, and classifies the response.
func (e *endpointSpec) Validate(ctx context.Context, key string) (model.ValidationResult, error) {
	result := model.ValidationResult{KeyType: e.keyType}

	if strings.TrimSpace(e.url) == "" {
		return result, errs.New(errs.Validation, "no issuing-service endpoint known for this key type")
	}

	for attempt := 1; attempt <= 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, e.method, e.url, nil)
		if err != nil {
			return result, errs.Wrap(errs.Unknown, "build validator request", err)
		}
		name, value := e.authHeader(key)
		req.Header.Set(name, value)
		for k, v := range e.extraHeader {
			req.Header.Set(k, v)
		}

		resp, err := httpx.SharedClient(15 * time.Second).Do(req)
		if err != nil {
			return result, errs.Wrap(errs.Network, "validator request failed", err)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			result.Valid = true
			result.Message = "validated"
			if e.parseMeta != nil {
				result.Metadata = e.parseMeta(body)
			}
			return result, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			result.Valid = false
			result.Message = "unauthorized"
			return result, nil
		case resp.StatusCode == http.StatusNotFound:
			result.Valid = false
			result.Message = "not found"
			return result, nil
		case resp.StatusCode == http.StatusTooManyRequests && attempt == 1:
			if sleepErr := netpolicy.SleepForRetry(ctx, attempt, resp.Header); sleepErr != nil {
				return result, errs.Wrap(errs.Cancelled, "validator retry cancelled", sleepErr)
			}
			continue
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return result, errs.FromHTTP(errs.RateLimited, "validator service unavailable", resp.StatusCode, resp.Header.Get("X-Request-Id"))
		default:
			return result, errs.FromHTTP(errs.Validation, fmt.Sprintf("unexpected status from %s", e.keyType), resp.StatusCode, resp.Header.Get("X-Request-Id"))
		}
	}
	return result, errs.New(errs.RateLimited, "validator rate limited after retry")
}

// Registry resolves validators by name or alias and exposes the per-type
// rate gates every pipeline worker shares.
type Registry struct {
	specs []*endpointSpec
	gates *ratelimit.Gates
}

const All = "all"

// NewRegistry builds a Registry with the active validator set and its
// shared rate gates.
func NewRegistry() *Registry {
	specs := builtinSpecs()
	defaults := make(map[string]time.Duration, len(specs))
	for _, s := range specs {
		defaults[s.keyType] = s.rateLimit
	}
	return &Registry{specs: specs, gates: ratelimit.NewGates(defaults, time.Second)}
}

// Gates exposes the registry's shared rate gates so pipeline workers can
// acquire before calling Validate.
func (r *Registry) Gates() *ratelimit.Gates { return r.gates }

// OverrideURL points a validator's endpoint at a different URL, leaving its
// rate limit, auth header, and metadata parsing untouched. This lets an
// operator run against a self-hosted proxy of a validator's API, and lets
// tests point a validator at an httptest.Server instead of the real
// service.
func (r *Registry) OverrideURL(keyType, url string) error {
	normalized := normalizeName(keyType)
	for _, s := range r.specs {
		if s.keyType == normalized {
			s.url = url
			return nil
		}
		for _, alias := range s.aliases {
			if alias == normalized {
				s.url = url
				return nil
			}
		}
	}
	return fmt.Errorf("validate: unknown key type %q, supported: %s", keyType, strings.Join(r.SupportedNames(), ", "))
}

// OverrideRateLimit replaces a validator's pacing gate with one that waits
// at least d between calls, for an operator who needs to run below a
// service's default quota (e.g. a shared or free-tier API key). It leaves
// the endpoint's own RateLimit() value untouched; only the gate returned by
// Gates() governs actual pacing.
func (r *Registry) OverrideRateLimit(keyType string, d time.Duration) error {
	normalized := normalizeName(keyType)
	for _, s := range r.specs {
		if s.keyType == normalized {
			r.gates.SetInterval(s.keyType, d)
			return nil
		}
		for _, alias := range s.aliases {
			if alias == normalized {
				r.gates.SetInterval(s.keyType, d)
				return nil
			}
		}
	}
	return fmt.Errorf("validate: unknown key type %q, supported: %s", keyType, strings.Join(r.SupportedNames(), ", "))
}

// Resolve returns the validators matching name: a single name/alias or the
// sentinel "all".
func (r *Registry) Resolve(name string) ([]Validator, error) {
	normalized := normalizeName(name)
	if normalized == All || normalized == "" {
		out := make([]Validator, 0, len(r.specs))
		for _, s := range r.specs {
			out = append(out, s)
		}
		return out, nil
	}
	for _, s := range r.specs {
		if s.keyType == normalized {
			return []Validator{s}, nil
		}
		for _, alias := range s.aliases {
			if alias == normalized {
				return []Validator{s}, nil
			}
		}
	}
	return nil, fmt.Errorf("validate: unknown key type %q, supported: %s", name, strings.Join(r.SupportedNames(), ", "))
}

// SupportedNames lists every registered validator name, sorted.
func (r *Registry) SupportedNames() []string {
	names := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		names = append(names, s.keyType)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

func jsonString(body []byte, field string) string {
	var m map[string]any
	if json.Unmarshal(body, &m) != nil {
		return ""
	}
	if v, ok := m[field].(string); ok {
		return v
	}
	if v, ok := m[field].(float64); ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
