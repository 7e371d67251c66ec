// SPDX-License-Identifier: MPL-2.0

// Package supervisor boots the pre-fork app server for a deployed application.
//
// The supervisor is deliberately small: it locates the in-project virtual
// environment, applies its activation to the process environment, and
// replaces the current process with the app server via exec. After a
// successful handoff the server owns the PID and receives signals directly;
// no supervisor code runs past that point. Failures before the handoff exit
// non-zero with an actionable error.
//
// The exec step is injectable so the handoff path is testable without
// replacing the test process.
package supervisor
