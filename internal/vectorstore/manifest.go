package vectorstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/models"
)

// ManifestFileName marks a complete index slot. It is written last.
const ManifestFileName = "manifest.yaml"

const manifestVersion = 1

// Manifest describes the contents of an index slot.
type Manifest struct {
	Version    int              `yaml:"version"`
	BuildID    string           `yaml:"build_id"`
	IndexType  string           `yaml:"index_type"`
	Dimensions int              `yaml:"dimensions"`
	Chunks     int              `yaml:"chunks"`
	Keyword    bool             `yaml:"keyword"`
	Document   *models.Document `yaml:"document,omitempty"`
	CreatedAt  time.Time        `yaml:"created_at"`
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// readManifest returns ErrIndexNotFound when dir holds no manifest.
func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Wrap(err, apperr.KindIndexNotFound, "vector index not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported index manifest version %d", m.Version)
	}
	return &m, nil
}
