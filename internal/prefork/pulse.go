// SPDX-License-Identifier: MPL-2.0

package prefork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// defaultPulseInterval is how often the pulse helper touches the heartbeat
// file. It must comfortably undercut any sane heartbeat tolerance.
const defaultPulseInterval = time.Second

// ErrNoHeartbeatPath is returned when the pulse helper runs without a
// heartbeat file path, i.e. outside a prefork master.
var ErrNoHeartbeatPath = errors.New("no heartbeat path in environment")

// PulseOptions configures a pulse run.
type PulseOptions struct {
	// HeartbeatPath is the file to touch. Empty means read HeartbeatEnvVar.
	HeartbeatPath string
	// Interval between touches (default 1s).
	Interval time.Duration
	// Stdout and Stderr receive the wrapped command's output.
	// Nil means the helper's own.
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// RunPulse runs argv as a child process and touches the heartbeat file on
// an interval for as long as the child lives, making any command a valid
// prefork worker. It returns the child's exit code.
//
// The heartbeat stops the moment the child exits. The pulse vouches for
// liveness of the child process, nothing more.
func RunPulse(ctx context.Context, argv []string, opts PulseOptions) (int, error) {
	if len(argv) == 0 {
		return 1, errors.New("no worker command given")
	}

	hbPath := opts.HeartbeatPath
	if hbPath == "" {
		hbPath = os.Getenv(HeartbeatEnvVar)
	}
	if hbPath == "" {
		return 1, ErrNoHeartbeatPath
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPulseInterval
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = opts.Stdin

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("start worker command: %w", err)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				touchHeartbeat(hbPath)
			}
		}
	}()

	err := cmd.Wait()
	close(done)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("wait for worker command: %w", err)
	}
	return 0, nil
}

// touchHeartbeat bumps the heartbeat file's mtime, creating it if needed.
func touchHeartbeat(path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		// Recreate if the master's directory was swapped under us.
		_ = os.WriteFile(path, nil, 0o600) //nolint:errcheck // Next beat retries
	}
}
