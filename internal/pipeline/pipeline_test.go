package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"keyhunter/internal/detect"
	"keyhunter/internal/model"
	"keyhunter/internal/search"
	"keyhunter/internal/tokenpool"
	"keyhunter/internal/validate"
)

// stubDetector wraps a real detector Spec but replaces its seed queries with
// a single query and opts out of Cartesian expansion across the fixed
// file-type qualifier list, keeping the fan-out small and deterministic.
type stubDetector struct {
	detect.Detector
}

func (s stubDetector) SearchQueries() []string  { return []string{"SHODAN_API_KEY"} }
func (s stubDetector) FileExtensions() []string { return []string{""} }

func TestPipelineEndToEndSingleValidKey(t *testing.T) {
	// One server plays both roles: GitHub-compatible code search under
	// /search/code, and self-hosted raw content under /raw/... (the path
	// search.Provider derives for any non-api.github.com base URL).
	searchServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search/code"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"total_count": 1,
				"items": [{"path": ".env", "html_url": "https://github.com/acme/repo/blob/main/.env",
				           "sha": "deadbeef", "repository": {"full_name": "acme/repo"}}]
			}`))
		case strings.HasPrefix(r.URL.Path, "/raw/"):
			w.Write([]byte(`SHODAN_API_KEY=EBUfD8FqZ3mN7xT1vR5cL9wJ2kH4aQ6s`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer searchServer.Close()

	validateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"plan":"dev","scan_credits":100}`))
	}))
	defer validateServer.Close()

	shodanDetectors, err := detect.NewRegistry().Resolve("shodan")
	if err != nil {
		t.Fatalf("resolve detector: %v", err)
	}
	stub := stubDetector{Detector: shodanDetectors[0]}

	pool := tokenpool.New([]string{"test-token"}, time.Millisecond)
	provider := search.New(searchServer.URL, pool)

	validators := validate.NewRegistry()
	if err := validators.OverrideURL("shodan", validateServer.URL); err != nil {
		t.Fatalf("override validator url: %v", err)
	}

	outputDir := t.TempDir()
	summary, err := Run(context.Background(), Options{
		Detectors:       []detect.Detector{stub},
		Provider:        provider,
		Validators:      validators,
		InlineValidate:  true,
		OutputDir:       outputDir,
		SearchWorkers:   1,
		DetectWorkers:   1,
		ValidateWorkers: 1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.QueriesExecuted != 1 {
		t.Fatalf("expected 1 query, got %d", summary.QueriesExecuted)
	}

	resultFile := filepath.Join(outputDir, "shodan")
	entries, err := os.ReadDir(resultFile)
	if err != nil {
		t.Fatalf("expected shodan results dir, got error: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one results file")
	}
	b, err := os.ReadFile(filepath.Join(resultFile, entries[0].Name()))
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	var doc struct {
		ValidKeys []model.Finding `json:"valid_keys"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(doc.ValidKeys) != 1 {
		t.Fatalf("expected 1 finding, got %d: %+v", len(doc.ValidKeys), doc.ValidKeys)
	}
	if doc.ValidKeys[0].Validation.Metadata["plan"] != "dev" {
		t.Fatalf("expected plan=dev metadata, got %+v", doc.ValidKeys[0].Validation.Metadata)
	}
}

// stubProvider feeds canned search results and contents to the pipeline
// without any HTTP, so stage-level behavior (dedup, cancellation) can be
// exercised deterministically.
type stubProvider struct {
	results  []model.SearchResult
	contents map[string]string

	block chan struct{} // if non-nil, Search blocks on it after the first call
	calls int
	mu    sync.Mutex
}

func (s *stubProvider) Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if !first && s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.results, nil
}

func (s *stubProvider) FetchContent(ctx context.Context, rawURL string) (string, bool, error) {
	content, ok := s.contents[rawURL]
	return content, ok, nil
}

func TestPipelineDeduplicatesAcrossFiles(t *testing.T) {
	validateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer validateServer.Close()

	// The same credential appears in two files of the same repository; the
	// seen-keys set must admit only the first.
	const key = "sk-ant-" + "test-key-0123456789abcdef"
	provider := &stubProvider{
		results: []model.SearchResult{
			{Repository: "acme/repo", FilePath: ".env", RawURL: "raw://env", FileURL: "https://github.com/acme/repo/blob/main/.env"},
			{Repository: "acme/repo", FilePath: "config.js", RawURL: "raw://js", FileURL: "https://github.com/acme/repo/blob/main/config.js"},
		},
		contents: map[string]string{
			"raw://env": "ANTHROPIC_API_KEY=" + key,
			"raw://js":  `const apiKey = "` + key + `";`,
		},
	}

	anthropic, err := detect.NewRegistry().Resolve("anthropic")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	validators := validate.NewRegistry()
	if err := validators.OverrideURL("anthropic", validateServer.URL); err != nil {
		t.Fatalf("override: %v", err)
	}

	outputDir := t.TempDir()
	summary, err := Run(context.Background(), Options{
		Detectors:       []detect.Detector{stubDetector{Detector: anthropic[0]}},
		Provider:        provider,
		Validators:      validators,
		InlineValidate:  true,
		OutputDir:       outputDir,
		SearchWorkers:   2,
		DetectWorkers:   2,
		ValidateWorkers: 1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.CandidatesFound != 1 {
		t.Fatalf("expected dedup to admit 1 candidate, got %d", summary.CandidatesFound)
	}
	if summary.ValidKeysWritten != 1 {
		t.Fatalf("expected 1 valid key, got %d", summary.ValidKeysWritten)
	}
}

func TestPipelineFlushesOnCancellation(t *testing.T) {
	validateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"plan":"dev"}`))
	}))
	defer validateServer.Close()

	// First Search call returns a hit; every later call blocks until the
	// run is cancelled, simulating a long tail of slow queries.
	provider := &stubProvider{
		results: []model.SearchResult{
			{Repository: "acme/repo", FilePath: ".env", RawURL: "raw://env"},
		},
		contents: map[string]string{
			"raw://env": "SHODAN_API_KEY=EBUfD8FqZ3mN7xT1vR5cL9wJ2kH4aQ6s",
		},
		block: make(chan struct{}),
	}

	shodan, err := detect.NewRegistry().Resolve("shodan")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	validators := validate.NewRegistry()
	if err := validators.OverrideURL("shodan", validateServer.URL); err != nil {
		t.Fatalf("override: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	outputDir := t.TempDir()
	summary, err := Run(ctx, Options{
		Detectors:       []detect.Detector{multiQueryDetector{Detector: shodan[0]}},
		Provider:        provider,
		Validators:      validators,
		InlineValidate:  true,
		OutputDir:       outputDir,
		SearchWorkers:   1,
		DetectWorkers:   1,
		ValidateWorkers: 1,
	})
	if err != nil {
		t.Fatalf("cancelled run should still complete cleanly: %v", err)
	}
	if summary.ValidKeysWritten != 1 {
		t.Fatalf("expected the pre-cancel finding to be written, got %d", summary.ValidKeysWritten)
	}

	entries, err := os.ReadDir(filepath.Join(outputDir, "shodan"))
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a flushed results file after cancellation, err=%v", err)
	}
	b, err := os.ReadFile(filepath.Join(outputDir, "shodan", entries[0].Name()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var cancelled struct {
		ValidKeys []model.Finding `json:"valid_keys"`
	}
	if err := json.Unmarshal(b, &cancelled); err != nil {
		t.Fatalf("flushed file must parse as complete JSON: %v", err)
	}
	if len(cancelled.ValidKeys) != 1 {
		t.Fatalf("expected 1 finding in flushed file, got %d", len(cancelled.ValidKeys))
	}
}

// multiQueryDetector keeps two seed queries so the stub provider's blocking
// second Search call has something to serve.
type multiQueryDetector struct {
	detect.Detector
}

func (m multiQueryDetector) SearchQueries() []string  { return []string{"SHODAN_API_KEY", "shodan_key"} }
func (m multiQueryDetector) FileExtensions() []string { return []string{""} }
