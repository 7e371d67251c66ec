// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package image

import "errors"

// errFlockUnavailable is returned on non-Linux platforms where a host-side
// flock cannot reach the engine VM's filesystem. The caller treats the lock
// as unavailable and proceeds without cross-process serialization.
var errFlockUnavailable = errors.New("flock not available on this platform")

// acquireBuildLock is a no-op on non-Linux platforms. On macOS/Windows the
// engine runs inside a Linux VM (podman machine/WSL2), so a host-side flock
// would not serialize against builds started from within the VM anyway.
func acquireBuildLock(string) (*buildLock, error) {
	return nil, errFlockUnavailable
}

// buildLock is the non-Linux stub. Release is a no-op.
type buildLock struct{}

// Release is a no-op on non-Linux platforms.
func (l *buildLock) Release() {}
