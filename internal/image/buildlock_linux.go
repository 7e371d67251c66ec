// SPDX-License-Identifier: MPL-2.0

//go:build linux

package image

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// errFlockUnavailable is defined for cross-platform compatibility with
// buildlock_other.go. On Linux, acquireBuildLock() never returns this error.
var errFlockUnavailable = errors.New("flock not available on this platform")

// buildLock holds a blocking exclusive flock on a per-tag file path, providing
// cross-process serialization of image builds. Two gangway processes building
// the same project would otherwise race the engine for the same tag.
//
// The lock file lives in $XDG_RUNTIME_DIR (per-user tmpfs, fast, auto-cleaned)
// with a fallback to os.TempDir() when the env var is unset. The zero-byte
// lock file is harmless if orphaned; the kernel releases the flock
// automatically when the fd is closed (including on process crash).
type buildLock struct {
	file *os.File
}

// acquireBuildLock opens (or creates) the lock file for the given image tag
// and acquires a blocking exclusive flock. The call blocks until the lock is
// available.
func acquireBuildLock(tag string) (*buildLock, error) {
	lockPath := lockFilePath(tag)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}

	return &buildLock{file: f}, nil
}

// Release unlocks the flock and closes the file descriptor. It is safe to call
// multiple times; subsequent calls are no-ops.
func (l *buildLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	// LOCK_UN before Close for explicitness; Close also releases the flock.
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}

// lockFilePath returns the path for the per-tag lock file. The tag is hashed
// because image tags contain characters unsuitable for file names.
func lockFilePath(tag string) string {
	return lockFilePathWith(tag, os.Getenv)
}

// lockFilePathWith returns the lock file path using the provided getenv function.
// This enables testing without mutating process-global environment state.
func lockFilePathWith(tag string, getenv func(string) string) string {
	dir := getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	sum := sha256.Sum256([]byte(tag))
	return filepath.Join(dir, "gangway-build-"+hex.EncodeToString(sum[:8])+".lock")
}
