// Command keyhunter scans GitHub-compatible code search for exposed
// third-party API credentials, validates them against their issuing
// services, and writes deduplicated findings to disk.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyhunter/internal/config"
	"keyhunter/internal/detect"
	"keyhunter/internal/mcpserver"
	"keyhunter/internal/model"
	"keyhunter/internal/pipeline"
	"keyhunter/internal/report"
	"keyhunter/internal/search"
	"keyhunter/internal/sink"
	"keyhunter/internal/tokenpool"
	"keyhunter/internal/validate"

	"gopkg.in/yaml.v3"
)

func main() {
	logger := log.New(os.Stdout, "keyhunter ", log.LstdFlags|log.LUTC)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "search":
		err = runSearch(ctx, logger, os.Args[2:])
	case "validate":
		err = runValidate(ctx, logger, os.Args[2:])
	case "test":
		err = runTest(ctx, logger, os.Args[2:])
	case "list":
		err = runList(logger, os.Args[2:])
	case "mcp":
		err = runMCP(ctx, logger, os.Args[2:])
	case "findings":
		err = runFindings(logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Printf("error: %v", err)
		os.Exit(exitCodeFor(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: keyhunter <search|validate|test|list|mcp|findings> [flags]")
}

func exitCodeFor(err error) int {
	var invalid *invalidKeyError
	if errors.As(err, &invalid) {
		return 1
	}
	return 2
}

type invalidKeyError struct{ reason string }

func (e *invalidKeyError) Error() string { return e.reason }

func runSearch(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	keyType := fs.String("k", "all", "detector key type, or \"all\"")
	query := fs.String("q", "", "custom search query, bypasses query expansion")
	configPath := fs.String("c", os.Getenv("KEY_HUNTER_CONFIG"), "path to optional TOML config file")
	outputDir := fs.String("o", "", "output directory override")
	inlineValidate := fs.Bool("validate", false, "validate candidates inline during search")
	verbose := fs.Bool("v", false, "log every per-item search and validation error")
	dumpConfig := fs.Bool("dump-config", false, "print the effective configuration as YAML and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *outputDir != "" {
		cfg.OutputDirectory = *outputDir
	}
	if *dumpConfig {
		dump := cfg
		dump.GitHubTokens = make([]string, len(cfg.GitHubTokens))
		for i := range dump.GitHubTokens {
			dump.GitHubTokens[i] = "<redacted>"
		}
		b, err := yaml.Marshal(dump)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	}
	if len(cfg.GitHubTokens) == 0 {
		return fmt.Errorf("no search tokens configured (set GITHUB_TOKEN1..5 or GITHUB_TOKEN)")
	}

	detectors := detect.NewRegistry()
	resolved, err := detectors.Resolve(*keyType)
	if err != nil {
		return err
	}
	if *query != "" {
		for i, d := range resolved {
			resolved[i] = singleQueryDetector{Detector: d, query: *query}
		}
	}

	pool := tokenpool.New(cfg.GitHubTokens, cfg.GitHubRateLimitDelay)
	provider := search.New(cfg.GitHubBaseURL, pool)
	validators := validate.NewRegistry()
	applyValidatorRateLimits(logger, validators, cfg.ValidatorRateLimits)

	pipelineLogger := logger
	if !*verbose {
		pipelineLogger = log.New(io.Discard, "", 0)
	}

	summary, err := pipeline.Run(ctx, pipeline.Options{
		Detectors:       resolved,
		Provider:        provider,
		Validators:      validators,
		InlineValidate:  *inlineValidate,
		OutputDir:       cfg.OutputDirectory,
		SearchWorkers:   cfg.SearchWorkers,
		DetectWorkers:   cfg.DetectWorkers,
		ValidateWorkers: cfg.ValidateWorkers,
		Logger:          pipelineLogger,
	})
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(summary)
}

// singleQueryDetector overrides a detector's seed queries with one custom
// query while keeping its patterns and entropy floor; its file extensions
// are replaced as well (see FileExtensions below).
type singleQueryDetector struct {
	detect.Detector
	query string
}

func (d singleQueryDetector) SearchQueries() []string { return []string{d.query} }

// FileExtensions returns no qualifiers: a custom -q query bypasses the
// provider's Cartesian expansion entirely, matching "custom user queries
// bypass expansion" rather than being multiplied across every file-type
// qualifier.
func (d singleQueryDetector) FileExtensions() []string { return []string{""} }

// applyValidatorRateLimits layers the validators.<service>_rate_limit_ms
// overrides resolved from config (TOML file or <SERVICE>_RATE_LIMIT_MS env
// var) onto the registry's shared gates. Unknown key types are logged and
// skipped rather than failing the run, matching the rest of this config
// layer's "ignore unknown keys" policy.
func applyValidatorRateLimits(logger *log.Logger, validators *validate.Registry, overrides map[string]time.Duration) {
	for keyType, d := range overrides {
		if err := validators.OverrideRateLimit(keyType, d); err != nil {
			logger.Printf("config: %v", err)
		}
	}
}

func runValidate(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	input := fs.String("i", "", "candidates file to validate")
	keyType := fs.String("k", "", "restrict to one key type")
	outputDir := fs.String("o", "", "output directory override")
	configPath := fs.String("c", os.Getenv("KEY_HUNTER_CONFIG"), "path to optional TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("validate: -i is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *outputDir != "" {
		cfg.OutputDirectory = *outputDir
	}

	b, err := os.ReadFile(*input)
	if err != nil {
		return err
	}
	var doc struct {
		KeyType    string              `json:"key_type"`
		Candidates []model.DetectedKey `json:"candidates"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}

	validators := validate.NewRegistry()
	applyValidatorRateLimits(logger, validators, cfg.ValidatorRateLimits)
	kt := doc.KeyType
	if *keyType != "" {
		kt = *keyType
	}
	resolved, err := validators.Resolve(kt)
	if err != nil || len(resolved) == 0 {
		return fmt.Errorf("validate: no validator for %q", kt)
	}
	validator := resolved[0]

	out := sink.New(cfg.OutputDirectory, validator.KeyType())
	for _, candidate := range doc.Candidates {
		if ctx.Err() != nil {
			break
		}
		out.IncScanned()
		if err := validators.Gates().Acquire(ctx, validator.KeyType()); err != nil {
			break
		}
		result, err := validator.Validate(ctx, candidate.Key)
		if err != nil {
			logger.Printf("validate error: %v", err)
			continue
		}
		if !result.Valid {
			continue
		}
		out.Add(model.Finding{Detected: candidate, Validation: result, ValidatedAt: time.Now().UTC()})
		logger.Printf("validated %s in %s", candidate.KeyType, candidate.FilePath)
	}
	written := out.Count()
	if written > 0 {
		path, err := out.Flush(time.Now().UTC())
		if err != nil {
			return err
		}
		logger.Printf("wrote %d finding(s) to %s", written, path)
	}
	logger.Printf("validated %d/%d candidates", written, len(doc.Candidates))
	return nil
}

func runTest(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	keyType := fs.String("k", "", "key type to test against")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("test: a key argument is required")
	}
	key := fs.Arg(0)
	// Flags may also follow the key ("test KEY -k TYPE"); flag parsing stops
	// at the first positional argument, so parse what remains after it.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	if *keyType == "" {
		return fmt.Errorf("test: -k is required")
	}

	validators := validate.NewRegistry()
	resolved, err := validators.Resolve(*keyType)
	if err != nil || len(resolved) == 0 {
		return fmt.Errorf("test: no validator for %q", *keyType)
	}
	result, err := resolved[0].Validate(ctx, key)
	if err != nil {
		return err
	}
	_ = json.NewEncoder(os.Stdout).Encode(result)
	if !result.Valid {
		return &invalidKeyError{reason: "key did not validate"}
	}
	return nil
}

func runList(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind := "all"
	if fs.NArg() > 0 {
		kind = fs.Arg(0)
	}
	out := struct {
		Detectors  []string `yaml:"detectors,omitempty"`
		Validators []string `yaml:"validators,omitempty"`
	}{}
	if kind == "detectors" || kind == "all" {
		out.Detectors = detect.NewRegistry().SupportedNames()
	}
	if kind == "validators" || kind == "all" {
		out.Validators = validate.NewRegistry().SupportedNames()
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

// runFindings prints the per-repository aggregation that the reporting
// view (C9) builds from every persisted results file. Posting disclosure
// issues from this aggregation is the out-of-scope "report" command; this
// only renders the view.
func runFindings(_ *log.Logger, args []string) error {
	fs := flag.NewFlagSet("findings", flag.ExitOnError)
	dir := fs.String("d", "./results", "results directory to aggregate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	byRepo, err := report.Load(*dir)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(byRepo)
}

func runMCP(ctx context.Context, logger *log.Logger, _ []string) error {
	srv := mcpserver.New(detect.NewRegistry(), validate.NewRegistry(), logger)
	return srv.Serve(ctx)
}
