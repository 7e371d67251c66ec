// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package supervisor

import "errors"

// execProcess is unavailable where the exec syscall cannot replace the
// process image. Deployments serve from Linux containers, so this stub
// only exists to keep the package compiling on other platforms.
func execProcess(string, []string, []string) error {
	return errors.New("process exec is not supported on this platform")
}
