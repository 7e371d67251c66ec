// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"gangway-cli/internal/issue"
	"gangway-cli/internal/supervisor"
	"gangway-cli/internal/venv"
	"gangway-cli/pkg/deployfile"

	"github.com/spf13/cobra"
)

// newUpCommand creates the `gangway up` command, the container entrypoint.
func newUpCommand(app *App) *cobra.Command {
	var appDir string

	upCmd := &cobra.Command{
		Use:   "up [-- command args...]",
		Short: "Activate the project environment and exec the app server",
		Long: `Activate the project environment and exec the app server.

This is the runtime entrypoint inside a deployment image: it activates
the in-project virtual environment, then replaces itself with the
pre-fork app server built from the gangway.toml server section.

Arguments after -- are exec'd verbatim in the activated environment
instead of the default server command:

  gangway up -- python -m myapp.migrate

A missing or corrupt virtual environment is fatal; gangway never falls
back to system site-packages.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := argsAfterDash(cmd, args)
			return runUp(app, appDir, extra)
		},
	}

	upCmd.Flags().StringVar(&appDir, "app-dir", ".", "application directory containing gangway.toml and .venv")

	return upCmd
}

func runUp(app *App, appDir string, extraArgs []string) error {
	root, err := filepath.Abs(appDir)
	if err != nil {
		return fmt.Errorf("resolving app directory %q: %w", appDir, err)
	}

	df, err := deployfile.Load(root)
	if err != nil {
		if errors.Is(err, deployfile.ErrDeployfileNotFound) {
			renderIssue(issue.DeployfileNotFoundId)
		}
		return &ExitError{Code: 1, Err: err}
	}

	sup := supervisor.New(root, df.App.Target, df.Settings(),
		supervisor.WithExtraArgs(extraArgs))

	// Run only returns on failure; on success the process image is replaced.
	if err := sup.Run(); err != nil {
		if errors.Is(err, venv.ErrEnvMissing) {
			renderIssue(issue.EnvMissingId)
		}
		return &ExitError{Code: 1, Err: err}
	}
	return nil
}

// argsAfterDash returns the raw arguments following the -- separator.
// Without a separator every positional argument is treated as part of
// the escape-hatch command.
func argsAfterDash(cmd *cobra.Command, args []string) []string {
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		return args[at:]
	}
	return args
}
