// Package model holds the data types that flow through the discovery
// pipeline: what a detector finds, what a validator decides, and what the
// sink ultimately persists.
package model

import "time"

// DetectedKey is one candidate credential observed in source content.
type DetectedKey struct {
	Key        string `json:"key"`
	KeyType    string `json:"key_type"`
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	Repository string `json:"repository"`
	FileURL    string `json:"file_url"`
}

// ValidationResult is the outcome of running a Validator against a
// DetectedKey.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	KeyType  string            `json:"key_type"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Finding is a persisted, validated detection.
type Finding struct {
	Detected    DetectedKey      `json:"detected"`
	Validation  ValidationResult `json:"validation"`
	ValidatedAt time.Time        `json:"validated_at"`
}

// SearchQuery is one expanded query submitted to the search provider.
type SearchQuery struct {
	Query    string
	KeyType  string
	PerPage  int
	MaxPages int
}

// SearchResult identifies one file returned by a code search.
type SearchResult struct {
	Repository string
	FilePath   string
	FileURL    string
	RawURL     string
	SHA        string
}

// RunSummary reports end-of-run counters, printed on stdout by the search
// command. The MCP server does not expose it.
type RunSummary struct {
	QueriesExecuted  int            `json:"queries_executed"`
	ResultsInspected int            `json:"results_inspected"`
	CandidatesFound  int            `json:"candidates_detected"`
	ValidKeysWritten int            `json:"valid_keys_written"`
	PerDetector      map[string]int `json:"per_detector"`
}
