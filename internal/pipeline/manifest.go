package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/mvp-joe/nodule-extract/internal/nodule"
)

// Manifest lists every nodule that had at least one slice extracted, with
// only the extracted slices.
type Manifest struct {
	RunID   string          `yaml:"run_id"`
	Created string          `yaml:"created"` // RFC 3339
	Format  string          `yaml:"format"`
	Nodules []nodule.Record `yaml:"nodules"`
}

// Set rebuilds the nodule set of the manifest.
func (m *Manifest) Set() *nodule.Set {
	return nodule.FromRecords(m.Nodules)
}

// WriteManifest writes m as YAML, replacing any previous file atomically.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return m, nil
}
