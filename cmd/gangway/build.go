// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gangway-cli/internal/config"
	"gangway-cli/internal/image"
	"gangway-cli/internal/issue"
	"gangway-cli/pkg/deployfile"

	"github.com/spf13/cobra"
)

// newBuildCommand creates the `gangway build` command.
func newBuildCommand(app *App) *cobra.Command {
	var (
		projectDir string
		force      bool
		noCache    bool
	)

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the deployment image for a project",
		Long: `Build the deployment image for a project.

Reads pyproject.toml, poetry.lock, and gangway.toml from the project
directory and produces a multi-stage container image. Images are tagged
by the content of the lock file and the generated launch files, so an
unchanged project reuses the already-built image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), app, projectDir, force, noCache)
		},
	}

	buildCmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory containing gangway.toml")
	buildCmd.Flags().BoolVarP(&force, "force", "f", false, "rebuild even if a cached image exists")
	buildCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the engine layer cache as well")

	return buildCmd
}

func runBuild(ctx context.Context, app *App, projectDir string, force, noCache bool) error {
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

	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	engine, err := app.Engine(cfg.ContainerEngine)
	if err != nil {
		renderIssue(issue.EngineNotFoundId)
		return err
	}

	imgCfg, err := buildImageConfig(df, cfg, projectRoot)
	if err != nil {
		return err
	}
	imgCfg.Apply(
		image.WithForceRebuild(force),
		image.WithNoCache(noCache),
	)

	builder := image.NewBuilder(engine, imgCfg)
	builder.Output = app.stderr

	result, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("building image for %s: %w", df.App.Name, err)
	}

	if result.Cached {
		fmt.Fprintf(app.stdout, "%s Image up to date: %s\n",
			SuccessStyle.Render("✓"), CmdStyle.Render(result.ImageTag.String()))
	} else {
		fmt.Fprintf(app.stdout, "%s Built image: %s\n",
			SuccessStyle.Render("✓"), CmdStyle.Render(result.ImageTag.String()))
	}
	return nil
}

// buildImageConfig merges the deployfile build section over the tool
// configuration defaults into an immutable build config.
func buildImageConfig(df *deployfile.Deployfile, cfg *config.Config, projectRoot string) (*image.Config, error) {
	baseImage := df.Build.BaseImage
	if baseImage == "" {
		baseImage = cfg.Build.BaseImage
	}
	poetryVersion := df.Build.PoetryVersion
	if poetryVersion == "" {
		poetryVersion = cfg.Build.PoetryVersion
	}

	scratchDir, err := config.CacheDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving build cache directory: %w", err)
	}

	return image.NewConfig(df.App.Name, projectRoot, df.App.Target,
		image.WithServerSettings(df.Settings()),
		image.WithBaseImage(baseImage),
		image.WithPoetryVersion(poetryVersion),
		image.WithSystemPackages(df.Build.SystemPackages),
		image.WithScratchDir(scratchDir),
	), nil
}

// renderIssue prints the known-issue guidance for the given id to stderr.
func renderIssue(id issue.Id) {
	rendered, err := issue.Get(id).Render("dark")
	if err != nil {
		return
	}
	fmt.Fprint(os.Stderr, rendered)
}
