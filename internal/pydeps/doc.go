// SPDX-License-Identifier: MPL-2.0

// Package pydeps models the Python dependency declarations an image build
// consumes: the pyproject.toml manifest (loose constraints, Python version
// requirement, build-system declaration) and the poetry.lock file (the fully
// resolved, exact-version package graph).
//
// The package only reads these files. Resolution itself is Poetry's job and
// happens inside the build's install stage; pydeps exists so the builder can
// refuse to start a build whose inputs are missing or inconsistent, and so
// image tags can be derived from the lock file's content hash.
package pydeps
