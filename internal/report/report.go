// Package report loads every persisted Findings file under a results
// directory and aggregates them per repository, for the out-of-scope
// disclosure-issue command to consume.
package report

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"keyhunter/internal/errs"
	"keyhunter/internal/model"
)

type findingsDocument struct {
	ValidKeys []model.Finding `json:"valid_keys"`
}

// ByRepository maps a repository identifier to its deduplicated Findings.
type ByRepository map[string][]model.Finding

// Load walks dir for every valid_keys_*.json file, decodes it, and
// deduplicates Findings within each repository by (key, file_path).
func Load(dir string) (ByRepository, error) {
	out := ByRepository{}
	seen := map[string]map[string]bool{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		if matched, _ := filepath.Match("valid_keys_*.json", filepath.Base(path)); !matched {
			return nil
		}
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		var doc findingsDocument
		if jsonErr := json.Unmarshal(b, &doc); jsonErr != nil {
			return jsonErr
		}
		for _, f := range doc.ValidKeys {
			repo := f.Detected.Repository
			dedupKey := f.Detected.Key + "\x00" + f.Detected.FilePath
			if seen[repo] == nil {
				seen[repo] = map[string]bool{}
			}
			if seen[repo][dedupKey] {
				continue
			}
			seen[repo][dedupKey] = true
			out[repo] = append(out[repo], f)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, errs.Wrap(errs.Io, "load results directory", err)
	}
	return out, nil
}
