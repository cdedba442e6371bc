package core

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the package manifest file expected at a package root.
const ManifestFileName = "Cairn.toml"

var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest represents the Cairn.toml file describing a single package.
type Manifest struct {
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Description  string            `toml:"description,omitempty"`
	License      string            `toml:"license,omitempty"`
	Dependencies map[string]string `toml:"dependencies,omitempty"`
	// Files lists glob patterns selecting the files shipped in the archive.
	Files []string `toml:"files,omitempty"`
}

// Package is a fully resolved package descriptor offered for publish.
type Package struct {
	Id       PackageId
	Manifest *Manifest
}

// LoadManifest reads and validates a package manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest TOML: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}

// SaveManifest writes a manifest to path.
func SaveManifest(path string, manifest *Manifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks if the manifest is valid.
func (m *Manifest) Validate() error {
	if _, err := NewPackageName(m.Name); err != nil {
		return err
	}
	if err := ValidVersion(m.Version); err != nil {
		return err
	}
	return nil
}

// PackageId resolves the manifest's identity against a registry URL.
func (m *Manifest) PackageId(sourceURL string) (PackageId, error) {
	return NewPackageId(m.Name, m.Version, sourceURL)
}
