// Package detect implements the detector registry and the built-in,
// regex-plus-entropy credential detectors.
package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"keyhunter/internal/model"
)

// Detector extracts candidate credentials from file content.
type Detector interface {
	Name() string
	Detect(content, filePath string) []model.DetectedKey
	Patterns() []*regexp.Regexp
	SearchQueries() []string
	// FileExtensions reports this detector's seed file-type hints. The
	// search provider's normal query expansion ignores these in favor of
	// its own fixed qualifier list (every detector is searched across the
	// same file types); a detector reports a single empty string here to
	// opt out of expansion entirely (see search.ExpandQueries).
	FileExtensions() []string
}

// Spec is a data-driven Detector: a name, its compiled patterns, an entropy
// floor, the seed queries the search provider uses when this detector is
// selected, and file-extension hints (which expansion does not use; see
// Detector.FileExtensions).
type Spec struct {
	name       string
	aliases    []string
	patterns   []*regexp.Regexp
	minEntropy float64
	queries    []string
	extensions []string
}

func (s *Spec) Name() string               { return s.name }
func (s *Spec) Patterns() []*regexp.Regexp { return s.patterns }
func (s *Spec) SearchQueries() []string    { return s.queries }
func (s *Spec) FileExtensions() []string   { return s.extensions }

// Detect applies every pattern in s and keeps matches meeting the entropy
// floor. Detection is line-oriented so a match carries a usable,
// 0-based line number.
func (s *Spec) Detect(content, filePath string) []model.DetectedKey {
	var out []model.DetectedKey
	lines := strings.Split(content, "\n")
	for lineNo, line := range lines {
		for _, pattern := range s.patterns {
			matches := pattern.FindAllStringSubmatch(line, -1)
			for _, groups := range matches {
				m := groups[0]
				if len(groups) > 1 && groups[1] != "" {
					m = groups[1]
				}
				if shannonEntropy(m) < s.minEntropy {
					continue
				}
				out = append(out, model.DetectedKey{
					Key:        m,
					KeyType:    s.name,
					FilePath:   filePath,
					LineNumber: lineNo,
				})
			}
		}
	}
	return out
}

// Registry resolves detectors by name or alias, mirroring the
// registry-of-specs idiom used for this codebase's other provider
// registries: a flat slice, normalized-name matching, and a "list all"
// helper.
type Registry struct {
	specs []*Spec
}

// All is the sentinel name selecting every registered detector.
const All = "all"

// NewRegistry builds a Registry containing the active, authoritative
// detector set.
func NewRegistry() *Registry {
	return &Registry{specs: builtinSpecs()}
}

// Resolve returns the detectors matching name, where name is either a
// single detector name/alias or the sentinel "all".
func (r *Registry) Resolve(name string) ([]Detector, error) {
	normalized := normalizeName(name)
	if normalized == All || normalized == "" {
		out := make([]Detector, 0, len(r.specs))
		for _, s := range r.specs {
			out = append(out, s)
		}
		return out, nil
	}
	for _, s := range r.specs {
		if s.name == normalized {
			return []Detector{s}, nil
		}
		for _, alias := range s.aliases {
			if alias == normalized {
				return []Detector{s}, nil
			}
		}
	}
	return nil, fmt.Errorf("detect: unknown key type %q, supported: %s", name, strings.Join(r.SupportedNames(), ", "))
}

// SupportedNames lists every registered detector name, sorted.
func (r *Registry) SupportedNames() []string {
	names := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	return name
}
