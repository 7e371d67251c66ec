// SPDX-License-Identifier: MPL-2.0

//go:build unix

package supervisor

import "golang.org/x/sys/unix"

// execProcess replaces the current process image via the exec syscall.
// On success it never returns.
func execProcess(argv0 string, argv []string, envv []string) error {
	return unix.Exec(argv0, argv, envv)
}
