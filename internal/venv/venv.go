// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gangway-cli/internal/issue"
)

const (
	// DefaultDirName is the in-project virtual environment directory name
	// created by "poetry install" with virtualenvs.in-project enabled.
	DefaultDirName = ".venv"

	// configFileName marks the root of a virtual environment.
	configFileName = "pyvenv.cfg"
)

// ErrEnvMissing is the sentinel error wrapped by all environment location
// failures, whether the directory is absent or structurally corrupt.
var ErrEnvMissing = errors.New("virtual environment missing or unusable")

type (
	// Activation describes a located virtual environment and knows how to
	// apply its activation to an environment variable list.
	Activation struct {
		// Root is the absolute path to the virtual environment directory.
		Root string
		// BinDir is the absolute path to the environment's bin directory.
		BinDir string
		// Python is the absolute path to the environment's interpreter.
		Python string
	}

	// MissingEnvError reports why a virtual environment could not be used.
	MissingEnvError struct {
		Root   string
		Reason string
	}
)

// Error implements the error interface.
func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("virtual environment at %q is unusable: %s", e.Root, e.Reason)
}

// Unwrap returns ErrEnvMissing so callers can use errors.Is for programmatic detection.
func (e *MissingEnvError) Unwrap() error { return ErrEnvMissing }

// Locate checks that root contains a usable virtual environment and returns
// its Activation. A directory without pyvenv.cfg or without an executable
// bin/python is classified the same as an absent one: both wrap ErrEnvMissing.
func Locate(root string) (*Activation, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingEnvError{Root: root, Reason: "directory does not exist"}
		}
		return nil, fmt.Errorf("stat virtual environment %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, &MissingEnvError{Root: root, Reason: "path is not a directory"}
	}

	if _, err := os.Stat(filepath.Join(root, configFileName)); err != nil {
		return nil, &MissingEnvError{Root: root, Reason: configFileName + " not found"}
	}

	binDir := filepath.Join(root, "bin")
	python := filepath.Join(binDir, "python")
	pyInfo, err := os.Stat(python)
	if err != nil {
		return nil, &MissingEnvError{Root: root, Reason: "bin/python not found"}
	}
	if pyInfo.IsDir() || pyInfo.Mode().Perm()&0o111 == 0 {
		return nil, &MissingEnvError{Root: root, Reason: "bin/python is not executable"}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve virtual environment path %q: %w", root, err)
	}

	return &Activation{
		Root:   abs,
		BinDir: filepath.Join(abs, "bin"),
		Python: filepath.Join(abs, "bin", "python"),
	}, nil
}

// LocateIn locates the in-project virtual environment under appDir.
func LocateIn(appDir string) (*Activation, error) {
	return Locate(filepath.Join(appDir, DefaultDirName))
}

// Apply returns a copy of environ with the activation applied: the
// environment's bin directory leads PATH, VIRTUAL_ENV points at the
// environment root, and PYTHONHOME is removed. Applying twice yields
// the same result as applying once.
func (a *Activation) Apply(environ []string) []string {
	out := make([]string, 0, len(environ)+2)

	sawPath := false
	for _, kv := range environ {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			out = append(out, kv)
			continue
		}
		switch key {
		case "PYTHONHOME":
			// A set PYTHONHOME overrides the venv's interpreter paths.
			continue
		case "VIRTUAL_ENV":
			continue
		case "PATH":
			sawPath = true
			out = append(out, "PATH="+a.prependBin(value))
		default:
			out = append(out, kv)
		}
	}

	if !sawPath {
		out = append(out, "PATH="+a.BinDir)
	}
	out = append(out, "VIRTUAL_ENV="+a.Root)

	return out
}

// prependBin puts the activation's bin directory at the front of a PATH
// value, dropping any existing occurrences so repeated application does
// not grow the list.
func (a *Activation) prependBin(path string) string {
	parts := strings.Split(path, string(os.PathListSeparator))
	kept := make([]string, 0, len(parts)+1)
	kept = append(kept, a.BinDir)
	for _, p := range parts {
		if p == "" || p == a.BinDir {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, string(os.PathListSeparator))
}

// MissingEnvIssue builds an actionable error for a missing environment,
// suggesting the rebuild steps an operator would take.
func MissingEnvIssue(root string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("activate virtual environment").
		WithResource(root).
		WithSuggestion("Rebuild the image so the environment is created during the install stage").
		WithSuggestion("Check that the runtime stage copies the application directory intact").
		WithSuggestion("Verify the environment was created in-project (poetry config virtualenvs.in-project true)").
		Wrap(cause).
		BuildError()
}
