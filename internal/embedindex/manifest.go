package embedindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const ManifestVersion = "1.0"

func utcNowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ReadManifest loads a manifest.json file; a missing or non-object file
// yields a zero-value Manifest, matching core/manifest.py's read_manifest
// tolerance.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// WriteManifest persists a manifest with stable, indented key order.
func WriteManifest(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
