// Package report describes a comparison as a YAML manifest and as a
// Markdown summary rendered to HTML.
package report

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CageChen/imagediff/internal/compare"
	mfs "github.com/CageChen/imagediff/internal/fs"
)

// ManifestName is the file name used when a manifest is written to a directory.
const ManifestName = "manifest.yaml"

// Manifest is the serializable form of a comparison.
type Manifest struct {
	Source      string                   `yaml:"source"`
	Destination string                   `yaml:"destination"`
	CreatedAt   time.Time                `yaml:"created_at"`
	Counts      compare.Counts           `yaml:"counts"`
	Changed     []string                 `yaml:"changed,omitempty"`
	Entries     []compare.Classification `yaml:"entries"`
}

// NewManifest builds a manifest from a snapshot. changed lists the Common
// paths whose content differs; pass nil when hashes were not computed.
func NewManifest(r *compare.Result, changed []string) *Manifest {
	return &Manifest{
		Source:      r.Source.Root,
		Destination: r.Destination.Root,
		CreatedAt:   r.CreatedAt.UTC(),
		Counts:      r.Counts,
		Changed:     changed,
		Entries:     r.Entries,
	}
}

// YAML encodes the manifest with two-space indentation.
func (m *Manifest) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteManifest writes m as ManifestName into dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := m.YAML()
	if err != nil {
		return err
	}
	return mfs.NewLocalFS(dir).WriteFile(ManifestName, bytes.NewReader(data))
}

// ReadManifest parses a manifest previously produced by YAML.
func ReadManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
