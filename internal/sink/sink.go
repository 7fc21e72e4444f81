// Package sink implements the results sink: an in-memory buffer of
// validated Findings, flushed atomically (write-temp-then-rename) to a
// single JSON file per run.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"keyhunter/internal/errs"
	"keyhunter/internal/model"
)

// Sink accumulates Findings for one key_type during a run and flushes them
// to disk exactly once.
type Sink struct {
	dir     string
	keyType string

	mu       sync.Mutex
	findings []model.Finding
	scanned  int
}

// New builds a Sink writing under dir for the given key_type.
func New(dir, keyType string) *Sink {
	return &Sink{dir: dir, keyType: keyType}
}

// Add appends a validated Finding. Callers must only pass Findings whose
// Validation.Valid is true; the sink does not re-check this invariant, it
// is the pipeline's job to enforce it before calling Add.
func (s *Sink) Add(f model.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, f)
}

// IncScanned records that one more candidate was scanned, whether or not
// it validated.
func (s *Sink) IncScanned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanned++
}

// Count returns the number of Findings buffered so far.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.findings)
}

type document struct {
	Timestamp        string          `json:"timestamp"`
	KeyType          string          `json:"key_type"`
	TotalValidKeys   int             `json:"total_valid_keys"`
	TotalKeysScanned int             `json:"total_keys_scanned"`
	ValidKeys        []model.Finding `json:"valid_keys"`
}

// Flush writes the buffered Findings to a new file under dir, named
// valid_keys_<UTC-timestamp>.json, appending a numeric suffix on any path
// collision, and returns the final path. Flush is safe to call once at the
// end of a run, on either normal completion or cancellation.
func (s *Sink) Flush(now time.Time) (string, error) {
	s.mu.Lock()
	doc := document{
		Timestamp:        now.UTC().Format(time.RFC3339),
		KeyType:          s.keyType,
		TotalValidKeys:   len(s.findings),
		TotalKeysScanned: s.scanned,
		ValidKeys:        append([]model.Finding(nil), s.findings...),
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.dir, s.keyType), 0o755); err != nil {
		return "", errs.Wrap(errs.Io, "create results directory", err)
	}

	path := s.resolvePath(now)
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.Parse, "encode results document", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", errs.Wrap(errs.Io, "write temp results file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errs.Wrap(errs.Io, "rename results file into place", err)
	}
	return path, nil
}

func (s *Sink) resolvePath(now time.Time) string {
	base := filepath.Join(s.dir, s.keyType, fmt.Sprintf("valid_keys_%s.json", now.UTC().Format("20060102_150405")))
	path := base
	for n := 1; fileExists(path); n++ {
		ext := filepath.Ext(base)
		path = fmt.Sprintf("%s_%d%s", base[:len(base)-len(ext)], n, ext)
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type candidateDocument struct {
	KeyType    string              `json:"key_type"`
	Candidates []model.DetectedKey `json:"candidates"`
}

// WriteCandidates atomically writes unvalidated, deduplicated candidates to
// dir for later consumption by the validate command. Used only when the
// pipeline runs with inline validation disabled.
func WriteCandidates(dir, keyType string, candidates []model.DetectedKey, now time.Time) (string, error) {
	if err := os.MkdirAll(filepath.Join(dir, keyType), 0o755); err != nil {
		return "", errs.Wrap(errs.Io, "create candidates directory", err)
	}
	path := filepath.Join(dir, keyType, fmt.Sprintf("candidates_%s.json", now.UTC().Format("20060102_150405")))
	b, err := json.MarshalIndent(candidateDocument{KeyType: keyType, Candidates: candidates}, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.Parse, "encode candidates document", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", errs.Wrap(errs.Io, "write temp candidates file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errs.Wrap(errs.Io, "rename candidates file into place", err)
	}
	return path, nil
}
