package detect

import "regexp"

// builtinSpecs returns the active detector set: the seven credential
// families with a live validator endpoint plus one generic-entropy
// fallback. Adding a family is a pure addition, a new Spec appended below.
func builtinSpecs() []*Spec {
	return []*Spec{
		{
			name:       "openai",
			aliases:    []string{"openai_api_key"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`), regexp.MustCompile(`\bsk-proj-[A-Za-z0-9_-]{20,}\b`)},
			minEntropy: 3.0,
			queries:    []string{`"sk-proj-"`, `"OPENAI_API_KEY"`},
			extensions: []string{"env", "py", "js", "ts", "json", "yaml", "yml"},
		},
		{
			name:       "anthropic",
			aliases:    []string{"claude", "anthropic_api_key"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,}\b`)},
			minEntropy: 3.0,
			queries:    []string{`"sk-ant-"`, `"ANTHROPIC_API_KEY"`},
			extensions: []string{"env", "py", "js", "ts", "json", "yaml", "yml"},
		},
		{
			name:       "gemini",
			aliases:    []string{"google_gemini", "gemini_api_key"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`)},
			minEntropy: 3.0,
			queries:    []string{`"AIza"`, `"GEMINI_API_KEY"`},
			extensions: []string{"env", "py", "js", "ts", "json"},
		},
		{
			name:       "openrouter",
			aliases:    []string{"openrouter_api_key"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\bsk-or-v1-[A-Za-z0-9]{20,}\b`)},
			minEntropy: 3.0,
			queries:    []string{`"sk-or-v1-"`, `"OPENROUTER_API_KEY"`},
			extensions: []string{"env", "py", "js", "ts", "json"},
		},
		{
			name:       "xai",
			aliases:    []string{"grok", "xai_api_key"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\bxai-[A-Za-z0-9]{20,}\b`)},
			minEntropy: 3.0,
			queries:    []string{`"xai-"`, `"XAI_API_KEY"`},
			extensions: []string{"env", "py", "js", "ts", "json"},
		},
		{
			name:    "github",
			aliases: []string{"github_pat", "github_token"},
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{20,}\b`),
				regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}\b`),
			},
			minEntropy: 3.0,
			queries:    []string{`"ghp_"`, `"github_pat_"`},
			extensions: []string{"env", "yml", "yaml", "json", "sh"},
		},
		{
			name:       "shodan",
			aliases:    []string{"shodan_api_key"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`\bSHODAN_API_KEY\s*[=:]\s*['"]?([A-Za-z0-9]{32})['"]?`)},
			minEntropy: 3.5,
			queries:    []string{`"SHODAN_API_KEY"`},
			extensions: []string{"env", "py", "json", "yaml", "yml"},
		},
		{
			name:       "generic_secret",
			aliases:    []string{"generic", "secret"},
			patterns:   []*regexp.Regexp{regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|token)\s*[=:]\s*['"]([A-Za-z0-9_\-\.]{24,})['"]`)},
			minEntropy: 4.0,
			queries:    []string{`"api_key=" OR "secret=" OR "token="`},
			extensions: []string{"env", "py", "js", "ts", "json", "yaml", "yml"},
		},
	}
}
