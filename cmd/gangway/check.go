// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"gangway-cli/internal/issue"
	"gangway-cli/internal/pydeps"
	"gangway-cli/pkg/deployfile"

	"github.com/spf13/cobra"
)

// newCheckCommand creates the `gangway check` command.
func newCheckCommand(app *App) *cobra.Command {
	var projectDir string

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a project without building",
		Long: `Validate a project without building.

Parses pyproject.toml, poetry.lock, and gangway.toml, and verifies the
lock file is consistent with the manifest. Exits non-zero on the first
problem found, the same problems that would abort 'gangway build'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(app, projectDir)
		},
	}

	checkCmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory containing gangway.toml")

	return checkCmd
}

func runCheck(app *App, projectDir string) error {
	projectRoot, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolving project directory %q: %w", projectDir, err)
	}

	df, err := deployfile.Load(projectRoot)
	if err != nil {
		if errors.Is(err, deployfile.ErrDeployfileNotFound) {
			renderIssue(issue.DeployfileNotFoundId)
		}
		return err
	}
	fmt.Fprintf(app.stdout, "%s deployfile: app %s serves %s\n",
		SuccessStyle.Render("✓"), CmdStyle.Render(df.App.Name), CmdStyle.Render(df.App.Target.String()))

	manifest, err := pydeps.LoadManifest(filepath.Join(projectRoot, "pyproject.toml"))
	if err != nil {
		if errors.Is(err, pydeps.ErrManifestNotFound) {
			renderIssue(issue.ManifestNotFoundId)
		}
		return err
	}
	fmt.Fprintf(app.stdout, "%s manifest: %d direct dependencies\n",
		SuccessStyle.Render("✓"), len(manifest.DependencyNames()))

	lock, err := pydeps.LoadLockfile(filepath.Join(projectRoot, "poetry.lock"))
	if err != nil {
		if errors.Is(err, pydeps.ErrLockfileNotFound) {
			renderIssue(issue.LockfileNotFoundId)
		}
		return err
	}
	fmt.Fprintf(app.stdout, "%s lock: %d packages, content hash %s\n",
		SuccessStyle.Render("✓"), len(lock.PackageNames()), VerboseStyle.Render(lock.ContentHash()))

	if err := pydeps.Verify(manifest, lock); err != nil {
		renderIssue(issue.LockfileInconsistentId)
		return err
	}
	fmt.Fprintf(app.stdout, "%s lock is consistent with the manifest\n", SuccessStyle.Render("✓"))

	return nil
}
