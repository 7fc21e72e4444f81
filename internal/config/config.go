// Package config loads key-hunter's configuration from environment
// variables, optionally overlaid with a TOML file. Env wins over file;
// both win over built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the fully resolved, validated configuration for a run.
type Config struct {
	GitHubTokens []string

	GitHubBaseURL        string
	GitHubRateLimitDelay time.Duration

	OutputDirectory string
	OutputFormat    string

	ValidatorRateLimits map[string]time.Duration

	SearchWorkers   int
	DetectWorkers   int
	ValidateWorkers int
}

type fileConfig struct {
	GitHub struct {
		BaseURL          string `toml:"base_url"`
		RateLimitDelayMS int    `toml:"rate_limit_delay_ms"`
	} `toml:"github"`
	Output struct {
		Directory string `toml:"directory"`
		Format    string `toml:"format"`
	} `toml:"output"`
	Validators map[string]int `toml:"validators"`
	Pipeline   struct {
		SearchWorkers   int `toml:"search_workers"`
		DetectWorkers   int `toml:"detect_workers"`
		ValidateWorkers int `toml:"validate_workers"`
	} `toml:"pipeline"`
}

// Load resolves the configuration. configPath may be empty, in which case
// only environment variables and defaults apply.
func Load(configPath string) (Config, error) {
	var fc fileConfig
	if path := strings.TrimSpace(configPath); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg := Config{
		GitHubTokens:         loadTokens(),
		GitHubBaseURL:        firstNonEmpty(env("GITHUB_BASE_URL", ""), fc.GitHub.BaseURL, "https://api.github.com"),
		GitHubRateLimitDelay: firstPositiveDuration(envDuration("GITHUB_RATE_LIMIT_DELAY_MS"), msDuration(fc.GitHub.RateLimitDelayMS), time.Second),
		OutputDirectory:      firstNonEmpty(env("OUTPUT_DIRECTORY", ""), fc.Output.Directory, "./results"),
		OutputFormat:         firstNonEmpty(env("OUTPUT_FORMAT", ""), fc.Output.Format, "json"),
		ValidatorRateLimits:  map[string]time.Duration{},
		SearchWorkers:        firstPositiveInt(intEnv("PIPELINE_SEARCH_WORKERS"), fc.Pipeline.SearchWorkers, 8),
		DetectWorkers:        firstPositiveInt(intEnv("PIPELINE_DETECT_WORKERS"), fc.Pipeline.DetectWorkers, 8),
		ValidateWorkers:      firstPositiveInt(intEnv("PIPELINE_VALIDATE_WORKERS"), fc.Pipeline.ValidateWorkers, 4),
	}

	for name, ms := range fc.Validators {
		if ms > 0 {
			cfg.ValidatorRateLimits[strings.TrimSuffix(name, "_rate_limit_ms")] = time.Duration(ms) * time.Millisecond
		}
	}
	for _, key := range os.Environ() {
		const suffix = "_RATE_LIMIT_MS"
		parts := strings.SplitN(key, "=", 2)
		if len(parts) != 2 || !strings.HasSuffix(parts[0], suffix) {
			continue
		}
		if v, err := strconv.Atoi(parts[1]); err == nil && v > 0 {
			name := strings.ToLower(strings.TrimSuffix(parts[0], suffix))
			cfg.ValidatorRateLimits[name] = time.Duration(v) * time.Millisecond
		}
	}

	if cfg.OutputFormat != "json" {
		return Config{}, fmt.Errorf("config: unsupported output format %q", cfg.OutputFormat)
	}
	return cfg, nil
}

func loadTokens() []string {
	var tokens []string
	for i := 1; i <= 5; i++ {
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("GITHUB_TOKEN%d", i))); v != "" {
			tokens = append(tokens, v)
		}
	}
	if len(tokens) == 0 {
		if v := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); v != "" {
			tokens = append(tokens, v)
		}
	}
	return tokens
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return v
}

func envDuration(key string) time.Duration {
	n := intEnv(key)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositiveDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
