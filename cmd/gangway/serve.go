// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gangway-cli/internal/issue"
	"gangway-cli/internal/prefork"
	"gangway-cli/pkg/deployfile"

	"github.com/spf13/cobra"
)

// newServeCommand creates the `gangway serve` command.
func newServeCommand(app *App) *cobra.Command {
	var (
		projectDir   string
		workers      int
		preloadProbe string
	)

	serveCmd := &cobra.Command{
		Use:   "serve -- <worker command> [args...]",
		Short: "Run a pre-fork worker pool around an arbitrary command",
		Long: `Run a pre-fork worker pool around an arbitrary command.

The master spawns N copies of the worker command, hands each one a
private heartbeat file path in the ` + prefork.HeartbeatEnvVar + ` environment
variable, and kills and replaces any worker whose heartbeat goes stale
for longer than the configured timeout. Worker pool tuning (workers,
timeouts, respawn budget) comes from the project's gangway.toml; the
pool runs with built-in defaults when no deployfile exists.

SIGTERM drains the pool gracefully within the graceful timeout; SIGHUP
replaces the whole worker set without counting against the respawn
budget. An optional preload probe runs exactly once before any worker
spawns; if it fails the master exits non-zero with zero workers
started:

  gangway serve --preload-probe 'python -c "import app.main"' -- \
      gangway pulse -- python -m app.worker`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := argsAfterDash(cmd, args)
			return runServe(cmd.Context(), app, projectDir, workers, preloadProbe, argv)
		},
	}

	serveCmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory containing gangway.toml")
	serveCmd.Flags().IntVarP(&workers, "workers", "w", 0, "override the configured worker count")
	serveCmd.Flags().StringVar(&preloadProbe, "preload-probe", "", "shell command run once before any worker spawns")

	return serveCmd
}

func runServe(ctx context.Context, app *App, projectDir string, workers int, preloadProbe string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no worker command given; pass it after --")
	}

	root, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolving project directory %q: %w", projectDir, err)
	}

	settings, err := serveSettings(root)
	if err != nil {
		return err
	}
	if workers > 0 {
		settings.Workers = workers
	}

	opts := prefork.Options{
		Workers:            settings.Workers,
		HeartbeatTolerance: settings.Timeout,
		GracefulTimeout:    settings.GracefulTimeout,
		RespawnBudget:      settings.RespawnBudget,
		Stdout:             app.stdout,
		Stderr:             app.stderr,
	}
	if settings.Preload && preloadProbe != "" {
		opts.PreloadProbe = &prefork.Command{
			Path: "/bin/sh",
			Args: []string{"-c", preloadProbe},
			Dir:  root,
		}
	}

	master := prefork.NewMaster(prefork.Command{
		Path: argv[0],
		Args: argv[1:],
		Dir:  root,
	}, opts)

	if err := master.Run(ctx); err != nil {
		switch {
		case errors.Is(err, prefork.ErrRespawnBudgetExhausted):
			renderIssue(issue.RespawnBudgetExhaustedId)
		case errors.Is(err, prefork.ErrPreloadFailed):
			renderIssue(issue.PreloadFailedId)
		}
		return &ExitError{Code: 1, Err: err}
	}
	return nil
}

// serveSettings loads server tuning from the project deployfile, falling
// back to built-in defaults when no deployfile exists.
func serveSettings(root string) (deployfile.ServerSettings, error) {
	df, err := deployfile.Load(root)
	if err != nil {
		if errors.Is(err, deployfile.ErrDeployfileNotFound) {
			return (&deployfile.Deployfile{}).Settings(), nil
		}
		return deployfile.ServerSettings{}, err
	}
	return df.Settings(), nil
}
