// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"gangway-cli/internal/config"
	"gangway-cli/internal/container"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer: all Cobra command handlers receive an App reference and
	// delegate configuration loading and engine selection through it.
	App struct {
		Config config.Provider
		Engine EngineFactory
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp. Tests can supply mock
	// implementations to isolate specific service behavior.
	Dependencies struct {
		Config config.Provider
		Engine EngineFactory
		Stdout io.Writer
		Stderr io.Writer
	}

	// EngineFactory resolves the configured container engine preference into a
	// concrete engine.
	EngineFactory func(pref config.ContainerEngine) (container.Engine, error)
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engine == nil {
		deps.Engine = defaultEngineFactory
	}

	return &App{
		Config: deps.Config,
		Engine: deps.Engine,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}, nil
}

func mustNewApp() *App {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
	return app
}

// loadConfig loads the tool configuration honoring the global --config flag.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
}

func defaultEngineFactory(pref config.ContainerEngine) (container.Engine, error) {
	switch pref {
	case config.ContainerEngineAuto, "":
		return container.AutoDetectEngine()
	default:
		return container.NewEngine(container.EngineType(pref))
	}
}
