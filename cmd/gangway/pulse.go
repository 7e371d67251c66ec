// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"time"

	"gangway-cli/internal/prefork"

	"github.com/spf13/cobra"
)

// newPulseCommand creates the `gangway pulse` command.
func newPulseCommand(app *App) *cobra.Command {
	var interval time.Duration

	pulseCmd := &cobra.Command{
		Use:   "pulse -- <command> [args...]",
		Short: "Run a command while beating the worker heartbeat",
		Long: `Run a command while beating the worker heartbeat.

Wraps a worker command that does not touch its heartbeat file itself:
the child runs unchanged while pulse refreshes the file named by the
` + prefork.HeartbeatEnvVar + ` environment variable at a fixed interval. The
wrapper exits with the child's exit code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := argsAfterDash(cmd, args)
			return runPulse(cmd, app, interval, argv)
		},
	}

	pulseCmd.Flags().DurationVar(&interval, "interval", 0, "heartbeat refresh interval (default 1s)")

	return pulseCmd
}

func runPulse(cmd *cobra.Command, app *App, interval time.Duration, argv []string) error {
	code, err := prefork.RunPulse(cmd.Context(), argv, prefork.PulseOptions{
		Interval: interval,
		Stdout:   app.stdout,
		Stderr:   app.stderr,
		Stdin:    os.Stdin,
	})
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
