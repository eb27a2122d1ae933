package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteLocal stores r as <dir>/<symbol>/result.json, replacing any previous
// file, and returns the path written.
func WriteLocal(dir string, r Results) (string, error) {
	target := filepath.Join(dir, r.Symbol)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", target, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}

	path := filepath.Join(target, "result.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("report: rename %s: %w", path, err)
	}
	return path, nil
}
