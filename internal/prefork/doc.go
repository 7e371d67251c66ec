// SPDX-License-Identifier: MPL-2.0

// Package prefork implements a pre-fork master for worker processes.
//
// The master spawns a fixed number of identical worker processes and
// supervises them with a file-based heartbeat: each worker receives a
// private heartbeat file path in its environment and is expected to touch
// it periodically (the pulse helper wraps arbitrary commands to do this).
// A worker whose heartbeat goes stale is killed and respawned; crashed
// workers are respawned the same way. Respawns draw from a finite budget,
// and exhausting it shuts the whole master down rather than flapping
// forever.
//
// An optional preload probe runs exactly once before any worker is
// spawned. If the probe fails, the master exits without starting workers,
// so a broken application import surfaces as one clear failure instead of
// N crash loops.
//
// SIGTERM and SIGINT drain the pool gracefully, bounded by the configured
// graceful timeout. SIGHUP drains and respawns every worker in place.
package prefork
