// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the well-known manifest file name.
const ManifestFileName = "pyproject.toml"

// ErrManifestNotFound is returned when no manifest exists at the given path.
var ErrManifestNotFound = errors.New("pyproject.toml not found")

type (
	// Manifest is the parsed pyproject.toml: the project's direct dependency
	// constraints, its Python version requirement, and its build-system
	// declaration. Constraints here are loose ("^0.95"); exact versions live
	// in the Lockfile.
	Manifest struct {
		// Name is the project name from [tool.poetry].
		Name string
		// Version is the project version from [tool.poetry].
		Version string
		// Description is the project description from [tool.poetry].
		Description string
		// PythonConstraint is the interpreter requirement (e.g. "^3.12").
		PythonConstraint string
		// Dependencies maps direct dependency names to their declared
		// constraint strings. The "python" pseudo-dependency is excluded
		// (it is surfaced as PythonConstraint instead).
		Dependencies map[string]string
		// BuildSystem is the PEP 517 build-system declaration.
		BuildSystem BuildSystem
	}

	// BuildSystem is the [build-system] table of pyproject.toml.
	BuildSystem struct {
		Requires []string `toml:"requires"`
		Backend  string   `toml:"build-backend"`
	}

	// rawManifest mirrors the TOML document structure for decoding.
	rawManifest struct {
		Tool struct {
			Poetry struct {
				Name         string         `toml:"name"`
				Version      string         `toml:"version"`
				Description  string         `toml:"description"`
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
		BuildSystem BuildSystem `toml:"build-system"`
	}
)

// LoadManifest reads and parses a pyproject.toml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses pyproject.toml content.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pyproject.toml: %w", err)
	}

	m := &Manifest{
		Name:         raw.Tool.Poetry.Name,
		Version:      raw.Tool.Poetry.Version,
		Description:  raw.Tool.Poetry.Description,
		Dependencies: make(map[string]string),
		BuildSystem:  raw.BuildSystem,
	}

	for name, spec := range raw.Tool.Poetry.Dependencies {
		constraint, err := constraintString(spec)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
		if name == "python" {
			m.PythonConstraint = constraint
			continue
		}
		m.Dependencies[name] = constraint
	}

	return m, nil
}

// constraintString normalizes a dependency specification value. Poetry allows
// either a bare constraint string or a table like
// {version = "^2.0", extras = ["standard"]}.
func constraintString(spec any) (string, error) {
	switch v := spec.(type) {
	case string:
		return v, nil
	case map[string]any:
		if version, ok := v["version"].(string); ok {
			return version, nil
		}
		// Git/path/url dependencies carry no version constraint.
		for _, key := range []string{"git", "path", "url"} {
			if src, ok := v[key].(string); ok {
				return key + ":" + src, nil
			}
		}
		return "", errors.New("table form has no version, git, path, or url key")
	default:
		return "", fmt.Errorf("unsupported specification type %T", spec)
	}
}

// DependencyNames returns the direct dependency names in sorted order.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
