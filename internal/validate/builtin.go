package validate

import (
	"encoding/json"
	"time"
)

// builtinSpecs returns the active validator set, one per detector family
// named in internal/detect, each calling the cheapest identity-check
// endpoint that service exposes.
func builtinSpecs() []*endpointSpec {
	return []*endpointSpec{
		{
			keyType:   "openai",
			aliases:   []string{"openai_api_key"},
			rateLimit: 500 * time.Millisecond,
			method:    "GET",
			url:       "https://api.openai.com/v1/models",
			authHeader: func(key string) (string, string) {
				return "Authorization", "Bearer " + key
			},
			parseMeta: func(body []byte) map[string]string {
				return map[string]string{"sample_model": jsonArrayFirstID(body)}
			},
		},
		{
			keyType:   "anthropic",
			aliases:   []string{"claude", "anthropic_api_key"},
			rateLimit: 500 * time.Millisecond,
			method:    "GET",
			url:       "https://api.anthropic.com/v1/models",
			authHeader: func(key string) (string, string) {
				return "x-api-key", key
			},
			extraHeader: map[string]string{"anthropic-version": "2023-06-01"},
		},
		{
			keyType:   "gemini",
			aliases:   []string{"google_gemini", "gemini_api_key"},
			rateLimit: 500 * time.Millisecond,
			method:    "GET",
			url:       "https://generativelanguage.googleapis.com/v1beta/models",
			authHeader: func(key string) (string, string) {
				return "x-goog-api-key", key
			},
		},
		{
			keyType:   "openrouter",
			aliases:   []string{"openrouter_api_key"},
			rateLimit: 500 * time.Millisecond,
			method:    "GET",
			url:       "https://openrouter.ai/api/v1/auth/key",
			authHeader: func(key string) (string, string) {
				return "Authorization", "Bearer " + key
			},
		},
		{
			keyType:   "xai",
			aliases:   []string{"grok", "xai_api_key"},
			rateLimit: 500 * time.Millisecond,
			method:    "GET",
			url:       "https://api.x.ai/v1/models",
			authHeader: func(key string) (string, string) {
				return "Authorization", "Bearer " + key
			},
		},
		{
			keyType:   "github",
			aliases:   []string{"github_pat", "github_token"},
			rateLimit: 500 * time.Millisecond,
			method:    "GET",
			url:       "https://api.github.com/user",
			authHeader: func(key string) (string, string) {
				return "Authorization", "Bearer " + key
			},
			extraHeader: map[string]string{"X-GitHub-Api-Version": "2022-11-28", "Accept": "application/vnd.github+json"},
			parseMeta: func(body []byte) map[string]string {
				return map[string]string{"login": jsonString(body, "login")}
			},
		},
		{
			keyType:   "shodan",
			aliases:   []string{"shodan_api_key"},
			rateLimit: time.Second,
			method:    "GET",
			url:       "https://api.shodan.io/api-info",
			authHeader: func(key string) (string, string) {
				return "X-Api-Key", key
			},
			parseMeta: func(body []byte) map[string]string {
				return map[string]string{
					"plan":         jsonString(body, "plan"),
					"scan_credits": jsonString(body, "scan_credits"),
				}
			},
		},
		{
			keyType:   "generic_secret",
			aliases:   []string{"generic", "secret"},
			rateLimit: time.Second,
			method:    "GET",
			url:       "",
			authHeader: func(key string) (string, string) {
				return "Authorization", "Bearer " + key
			},
		},
	}
}

func jsonArrayFirstID(body []byte) string {
	type listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	var l listing
	if err := json.Unmarshal(body, &l); err != nil || len(l.Data) == 0 {
		return ""
	}
	return l.Data[0].ID
}
