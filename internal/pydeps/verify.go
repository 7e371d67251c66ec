// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"errors"
	"fmt"
)

// ErrLockInconsistent is the sentinel wrapped by every Verify failure.
// A build must treat it as fatal: installing from a stale lock file would
// silently pin versions that no longer satisfy the declared constraints.
var ErrLockInconsistent = errors.New("lock file inconsistent with manifest")

// Verify checks that the lock file is a plausible resolution of the manifest.
//
// The authoritative consistency check (Poetry's content-hash recomputation)
// runs inside the build's install stage via `poetry check --lock`; Verify is
// the cheap host-side gate that rejects obviously broken inputs before any
// engine work starts:
//
//   - the lock metadata must carry a content hash and lock version
//   - the lock's Python constraint must match the manifest's
//   - every direct dependency declared in the manifest must appear in the
//     locked package graph
func Verify(m *Manifest, l *Lockfile) error {
	if m == nil {
		return fmt.Errorf("%w: no manifest", ErrLockInconsistent)
	}
	if l == nil {
		return fmt.Errorf("%w: no lock file", ErrLockInconsistent)
	}

	if l.Metadata.ContentHash == "" {
		return fmt.Errorf("%w: lock metadata has no content-hash", ErrLockInconsistent)
	}
	if l.Metadata.LockVersion == "" {
		return fmt.Errorf("%w: lock metadata has no lock-version", ErrLockInconsistent)
	}

	if m.PythonConstraint != "" && l.Metadata.PythonVersions != "" &&
		m.PythonConstraint != l.Metadata.PythonVersions {
		return fmt.Errorf("%w: python constraint %q in manifest vs %q in lock",
			ErrLockInconsistent, m.PythonConstraint, l.Metadata.PythonVersions)
	}

	for _, name := range m.DependencyNames() {
		if l.Package(name) == nil {
			return fmt.Errorf("%w: direct dependency %q is not locked",
				ErrLockInconsistent, name)
		}
	}

	return nil
}
