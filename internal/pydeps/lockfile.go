// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LockFileName is the well-known lock file name.
const LockFileName = "poetry.lock"

// ErrLockfileNotFound is returned when no lock file exists at the given path.
var ErrLockfileNotFound = errors.New("poetry.lock not found")

type (
	// Lockfile is the parsed poetry.lock: the exact package+version graph a
	// build installs from. It is treated as read-only input; gangway never
	// writes or re-resolves lock files.
	Lockfile struct {
		// Packages is every locked package, in file order.
		Packages []LockedPackage `toml:"package"`
		// Metadata is the [metadata] trailer.
		Metadata LockMetadata `toml:"metadata"`
	}

	// LockedPackage is one [[package]] entry.
	LockedPackage struct {
		Name           string `toml:"name"`
		Version        string `toml:"version"`
		Description    string `toml:"description"`
		Optional       bool   `toml:"optional"`
		PythonVersions string `toml:"python-versions"`
	}

	// LockMetadata is the [metadata] table: the lock format version, the
	// Python constraint the resolution was performed under, and the content
	// hash of the manifest state the lock was derived from.
	LockMetadata struct {
		LockVersion    string `toml:"lock-version"`
		PythonVersions string `toml:"python-versions"`
		ContentHash    string `toml:"content-hash"`
	}
)

// LoadLockfile reads and parses a poetry.lock file.
func LoadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLockfileNotFound, path)
		}
		return nil, fmt.Errorf("read lock file %s: %w", path, err)
	}
	return ParseLockfile(data)
}

// ParseLockfile parses poetry.lock content.
func ParseLockfile(data []byte) (*Lockfile, error) {
	var lf Lockfile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse poetry.lock: %w", err)
	}
	return &lf, nil
}

// Package returns the locked entry for the given package name, or nil.
// Lookup is case-insensitive with "-"/"_" folding, matching PEP 503
// name normalization.
func (l *Lockfile) Package(name string) *LockedPackage {
	want := normalizeName(name)
	for i := range l.Packages {
		if normalizeName(l.Packages[i].Name) == want {
			return &l.Packages[i]
		}
	}
	return nil
}

// ExactVersions returns the full name→version map of the locked graph.
func (l *Lockfile) ExactVersions() map[string]string {
	versions := make(map[string]string, len(l.Packages))
	for _, pkg := range l.Packages {
		versions[pkg.Name] = pkg.Version
	}
	return versions
}

// PackageNames returns the locked package names in sorted order.
func (l *Lockfile) PackageNames() []string {
	names := make([]string, 0, len(l.Packages))
	for _, pkg := range l.Packages {
		names = append(names, pkg.Name)
	}
	sort.Strings(names)
	return names
}

// ContentHash returns the lock file's manifest content hash. This is the
// cache key input for image tags: two builds with the same content hash
// install the same dependency environment.
func (l *Lockfile) ContentHash() string {
	return l.Metadata.ContentHash
}

// nameSeparators matches the separator runs PEP 503 folds to a single dash.
var nameSeparators = regexp.MustCompile(`[-_.]+`)

// normalizeName folds a package name per PEP 503: lowercase, with any run
// of dashes, underscores, and dots collapsed to a single dash.
func normalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(name), "-")
}
