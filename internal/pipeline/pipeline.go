// Package pipeline wires the Token Pool, Search Provider, Detector
// Registry, and Validator Registry into the four-stage discovery pipeline:
// query fan-out, search, detect, and (optionally) inline validate.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"keyhunter/internal/detect"
	"keyhunter/internal/httpx"
	"keyhunter/internal/model"
	"keyhunter/internal/search"
	"keyhunter/internal/sink"
	"keyhunter/internal/validate"
)

// Searcher is the subset of *search.Provider the pipeline depends on,
// narrowed to an interface so tests can substitute a stub search backend
// without spinning up real GitHub-shaped HTTP servers for every stage.
type Searcher interface {
	Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error)
	FetchContent(ctx context.Context, rawURL string) (string, bool, error)
}

// Options configures one pipeline run.
type Options struct {
	Detectors  []detect.Detector
	Provider   Searcher
	Validators *validate.Registry

	InlineValidate bool
	OutputDir      string

	SearchWorkers   int
	DetectWorkers   int
	ValidateWorkers int

	Logger *log.Logger
}

type searchItem struct {
	keyType  string
	detector detect.Detector
	result   model.SearchResult
	content  string
}

// Run executes one end-to-end pipeline pass over every configured
// detector's expanded queries and returns a RunSummary. It cancels cleanly
// on ctx.Done(), flushing whatever Findings each key type's sink has
// already accumulated.
func Run(ctx context.Context, opts Options) (model.RunSummary, error) {
	base := opts.Logger
	if base == nil {
		base = log.New(os.Stdout, "pipeline ", log.LstdFlags|log.LUTC)
	}
	runID := uuid.NewString()
	logger := log.New(base.Writer(), fmt.Sprintf("%s[%s] ", base.Prefix(), runID), base.Flags())
	defer httpx.CloseIdleConnections()
	logger.Printf("run starting: %d detector(s)", len(opts.Detectors))

	searchWorkers := positiveOr(opts.SearchWorkers, 8)
	detectWorkers := positiveOr(opts.DetectWorkers, 8)
	validateWorkers := positiveOr(opts.ValidateWorkers, 4)

	queries := make(chan struct {
		detector detect.Detector
		query    model.SearchQuery
	}, 64)
	items := make(chan searchItem, 128)
	candidates := make(chan model.DetectedKey, 256)

	var seen sync.Map
	sinks := map[string]*sink.Sink{}
	var sinksMu sync.Mutex
	sinkFor := func(keyType string) *sink.Sink {
		sinksMu.Lock()
		defer sinksMu.Unlock()
		if s, ok := sinks[keyType]; ok {
			return s
		}
		s := sink.New(opts.OutputDir, keyType)
		sinks[keyType] = s
		return s
	}

	summary := model.RunSummary{PerDetector: map[string]int{}}
	var summaryMu sync.Mutex

	candidateBuf := map[string][]model.DetectedKey{}
	var candidateMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	// Stage 1: query producer.
	g.Go(func() error {
		defer close(queries)
		for _, d := range opts.Detectors {
			for _, q := range search.ExpandQueries(d) {
				select {
				case queries <- struct {
					detector detect.Detector
					query    model.SearchQuery
				}{detector: d, query: q}:
					summaryMu.Lock()
					summary.QueriesExecuted++
					summaryMu.Unlock()
				case <-gctx.Done():
					return nil
				}
			}
		}
		return nil
	})

	// Stage 2: search workers.
	var searchWG sync.WaitGroup
	for i := 0; i < searchWorkers; i++ {
		searchWG.Add(1)
		g.Go(func() error {
			defer searchWG.Done()
			for q := range queries {
				results, err := opts.Provider.Search(gctx, q.query)
				if err != nil {
					logger.Printf("search error for %s: %v", q.query.Query, err)
					continue
				}
				for _, r := range results {
					content, ok, err := opts.Provider.FetchContent(gctx, r.RawURL)
					if err != nil {
						logger.Printf("fetch error for %s: %v", r.RawURL, err)
						continue
					}
					if !ok {
						continue
					}
					summaryMu.Lock()
					summary.ResultsInspected++
					summaryMu.Unlock()
					select {
					case items <- searchItem{keyType: q.detector.Name(), detector: q.detector, result: r, content: content}:
					case <-gctx.Done():
						return nil
					}
				}
			}
			return nil
		})
	}
	go func() { searchWG.Wait(); close(items) }()

	// Stage 3: detect workers.
	var detectWG sync.WaitGroup
	for i := 0; i < detectWorkers; i++ {
		detectWG.Add(1)
		g.Go(func() error {
			defer detectWG.Done()
			for item := range items {
				found := item.detector.Detect(item.content, item.result.FilePath)
				for _, dk := range found {
					dk.Repository = item.result.Repository
					dk.FileURL = item.result.FileURL
					if _, loaded := seen.LoadOrStore(dk.Key, struct{}{}); loaded {
						continue
					}
					summaryMu.Lock()
					summary.CandidatesFound++
					summary.PerDetector[dk.KeyType]++
					summaryMu.Unlock()
					select {
					case candidates <- dk:
					case <-gctx.Done():
						return nil
					}
				}
			}
			return nil
		})
	}
	go func() { detectWG.Wait(); close(candidates) }()

	// Stage 4: validate (or collect as pending candidates).
	var validateWG sync.WaitGroup
	for i := 0; i < validateWorkers; i++ {
		validateWG.Add(1)
		g.Go(func() error {
			defer validateWG.Done()
			for dk := range candidates {
				if !opts.InlineValidate {
					candidateMu.Lock()
					candidateBuf[dk.KeyType] = append(candidateBuf[dk.KeyType], dk)
					candidateMu.Unlock()
					continue
				}
				s := sinkFor(dk.KeyType)
				s.IncScanned()
				validators, err := opts.Validators.Resolve(dk.KeyType)
				if err != nil || len(validators) == 0 {
					continue
				}
				validator := validators[0]
				if err := opts.Validators.Gates().Acquire(gctx, dk.KeyType); err != nil {
					continue
				}
				result, err := validator.Validate(gctx, dk.Key)
				if err != nil {
					logger.Printf("validate error for %s: %v", dk.KeyType, err)
					continue
				}
				if !result.Valid {
					continue
				}
				s.Add(model.Finding{Detected: dk, Validation: result, ValidatedAt: time.Now().UTC()})
				summaryMu.Lock()
				summary.ValidKeysWritten++
				summaryMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	now := time.Now().UTC()
	if opts.InlineValidate {
		sinksMu.Lock()
		for _, s := range sinks {
			if s.Count() == 0 {
				continue
			}
			if _, err := s.Flush(now); err != nil {
				logger.Printf("sink flush error: %v", err)
			}
		}
		sinksMu.Unlock()
	} else {
		candidateMu.Lock()
		for keyType, list := range candidateBuf {
			if _, err := sink.WriteCandidates(opts.OutputDir, keyType, list, now); err != nil {
				logger.Printf("candidates flush error: %v", err)
			}
		}
		candidateMu.Unlock()
	}

	return summary, nil
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
