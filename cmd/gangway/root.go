// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for gangway.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gangway-cli/internal/config"
	"gangway-cli/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// Verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "gangway",
		Short: "Container build and process bootstrap for Python web APIs",
		Long: TitleStyle.Render("gangway") + SubtitleStyle.Render(" - Container build and process bootstrap for Python web APIs") + `

gangway turns a Poetry-managed project into a reproducible multi-stage
container image and supervises the hand-off from container start to a
pre-fork application server.

Deployments are described in a 'gangway.toml' file next to the
project's pyproject.toml and poetry.lock.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Add a gangway.toml with your app target (e.g. "app.main:app")
  2. Build the deployment image with: gangway build
  3. Inside the container, gangway up activates the environment
     and execs the app server

` + SubtitleStyle.Render("Examples:") + `
  gangway build             Build the deployment image
  gangway check             Validate manifest, lock, and deployfile
  gangway up                Activate the venv and exec the server
  gangway up -- python -m debugpy ...   Exec an arbitrary command instead
  gangway serve -- worker-cmd   Run the built-in pre-fork master
  gangway config show       Show current configuration`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gangway/config.toml)")

	app := mustNewApp()

	// Add subcommands
	rootCmd.AddCommand(newBuildCommand(app))
	rootCmd.AddCommand(newCheckCommand(app))
	rootCmd.AddCommand(newUpCommand(app))
	rootCmd.AddCommand(newServeCommand(app))
	rootCmd.AddCommand(newPulseCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig reads in config file and ENV variables if set.
func initRootConfig() {
	cfg, err := config.NewProvider().Load(context.Background(), config.LoadOptions{
		ConfigFilePath: cfgFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
	}

	// Apply verbose from config if not set via flag
	if cfg != nil && !verbose {
		verbose = cfg.UI.Verbose
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}
