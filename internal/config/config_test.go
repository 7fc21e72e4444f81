package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	clearKeyHunterEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GitHubBaseURL != "https://api.github.com" {
		t.Fatalf("unexpected default base url: %s", cfg.GitHubBaseURL)
	}
	if cfg.SearchWorkers != 8 || cfg.DetectWorkers != 8 || cfg.ValidateWorkers != 4 {
		t.Fatalf("unexpected default worker counts: %+v", cfg)
	}
	if cfg.OutputDirectory != "./results" {
		t.Fatalf("unexpected default output dir: %s", cfg.OutputDirectory)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearKeyHunterEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[github]\nbase_url = \"https://file.example\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GITHUB_BASE_URL", "https://env.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GitHubBaseURL != "https://env.example" {
		t.Fatalf("expected env to win, got %s", cfg.GitHubBaseURL)
	}
}

func TestLoadTokensFromNumberedEnv(t *testing.T) {
	clearKeyHunterEnv(t)
	t.Setenv("GITHUB_TOKEN1", "one")
	t.Setenv("GITHUB_TOKEN2", "two")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.GitHubTokens) != 2 {
		t.Fatalf("expected 2 tokens, got %+v", cfg.GitHubTokens)
	}
}

func TestValidatorRateLimitFromFile(t *testing.T) {
	clearKeyHunterEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[validators]\nshodan_rate_limit_ms = 2500\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ValidatorRateLimits["shodan"] != 2500*time.Millisecond {
		t.Fatalf("expected shodan rate limit 2500ms, got %+v", cfg.ValidatorRateLimits)
	}
}

func clearKeyHunterEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GITHUB_TOKEN", "GITHUB_TOKEN1", "GITHUB_TOKEN2", "GITHUB_TOKEN3", "GITHUB_TOKEN4", "GITHUB_TOKEN5",
		"GITHUB_BASE_URL", "GITHUB_RATE_LIMIT_DELAY_MS", "OUTPUT_DIRECTORY", "OUTPUT_FORMAT",
		"PIPELINE_SEARCH_WORKERS", "PIPELINE_DETECT_WORKERS", "PIPELINE_VALIDATE_WORKERS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
