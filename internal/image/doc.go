// SPDX-License-Identifier: MPL-2.0

// Package image builds deployable container images for Python web APIs.
//
// The build is a three-stage container build driven entirely by the
// project's pyproject.toml and poetry.lock: a poetry stage installs the
// pinned dependency manager into its own venv, a builder stage takes
// that install directory and resolves the locked dependency set into an
// in-project virtual environment, and a slim runtime stage receives
// only the application directory, owned by an unprivileged numeric
// user. No package manager, compiler, or Poetry itself survives into
// the final image.
//
// Builds are atomic with respect to the image tag: the tag is derived
// from the lock file content hash and is only applied by a successful
// build, so a failed build never leaves a partially usable tag behind.
// Rebuilding with an unchanged lock file and configuration is a cache
// hit and performs no work.
package image
