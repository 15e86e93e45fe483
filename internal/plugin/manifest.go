// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin hosts named Lua plugins in the shared runtime: loading each
// into an isolated namespace, calling into it, and reporting its failures.
package plugin

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// HostAPIVersion is the version of the host API plugins see. A manifest's
// requires constraint is checked against it.
const HostAPIVersion = "1.0.0"

// ManifestFile is the file name LoadDir looks for in each plugin directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string   `yaml:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version      string   `yaml:"version" jsonschema:"minLength=1"`
	Entry        string   `yaml:"entry" jsonschema:"minLength=1"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Requires     string   `yaml:"requires,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ValidName reports whether name is usable as a manifest plugin name.
func ValidName(name string) bool {
	return name != "" && len(name) <= maxNameLength && namePattern.MatchString(name)
}

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints, including that the host satisfies
// the requires constraint.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}

	if m.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if filepath.IsAbs(m.Entry) || !filepath.IsLocal(m.Entry) {
		return fmt.Errorf("entry %q must be a relative path inside the plugin directory", m.Entry)
	}

	for i, c := range m.Capabilities {
		if c == "" {
			return fmt.Errorf("capability %d is empty", i)
		}
	}

	if m.Requires != "" {
		constraint, err := semver.NewConstraint(m.Requires)
		if err != nil {
			return fmt.Errorf("requires %q is not a valid constraint: %w", m.Requires, err)
		}
		host := semver.MustParse(HostAPIVersion)
		if ok, errs := constraint.Validate(host); !ok {
			return fmt.Errorf("requires %q is not satisfied by host API %s: %v", m.Requires, HostAPIVersion, errs)
		}
	}

	return nil
}

// EntryPath returns the script path for a plugin installed in dir.
func (m *Manifest) EntryPath(dir string) string {
	return filepath.Join(dir, m.Entry)
}
