// SPDX-License-Identifier: MPL-2.0

package image

import (
	"os"
	"path/filepath"

	"gangway-cli/pkg/deployfile"
)

const (
	// DefaultBaseImage is the image used for both build and runtime stages.
	DefaultBaseImage = "python:3.12-slim-bookworm"
	// DefaultPoetryVersion pins the Poetry release installed in the builder stage.
	DefaultPoetryVersion = "1.8.3"
	// DefaultAppDir is where the application lives inside the image.
	DefaultAppDir = "/srv/app"
	// DefaultUID is the unprivileged numeric user owning the application files.
	DefaultUID = 10001
	// DefaultGID is the unprivileged numeric group owning the application files.
	DefaultGID = 10001
)

type (
	// Config holds the immutable inputs of an image build. Construct it with
	// NewConfig and functional options; once a build starts, nothing mutates it.
	Config struct {
		// AppName names the deployment, used in the image tag.
		AppName string

		// ProjectRoot is the host directory holding pyproject.toml, poetry.lock,
		// and the application source.
		ProjectRoot string

		// Target is the application callable served by the image.
		Target deployfile.AppTarget

		// Server is the normalized server tuning baked into the image.
		Server deployfile.ServerSettings

		// BaseImage is the base for both build and runtime stages.
		BaseImage string

		// PoetryVersion pins the Poetry release in the builder stage.
		PoetryVersion string

		// SystemPackages are extra apt packages installed in the runtime stage.
		SystemPackages []string

		// AppDir is where the application lives inside the image.
		AppDir string

		// UID and GID own the application files in the runtime stage.
		UID int
		GID int

		// ForceRebuild bypasses the cached image and forces a rebuild.
		ForceRebuild bool

		// NoCache disables the engine's layer cache as well.
		NoCache bool

		// TagSuffix is an optional suffix appended to image tags.
		// This enables test isolation by making each test's images unique.
		TagSuffix string

		// ScratchDir is the parent directory for temporary build contexts.
		// When empty, a platform default under the user cache dir is used.
		ScratchDir string
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// NewConfig returns a build Config for the given project with defaults applied.
func NewConfig(appName, projectRoot string, target deployfile.AppTarget, opts ...Option) *Config {
	cfg := &Config{
		AppName:       appName,
		ProjectRoot:   projectRoot,
		Target:        target,
		Server:        (&deployfile.Deployfile{}).Settings(),
		BaseImage:     DefaultBaseImage,
		PoetryVersion: DefaultPoetryVersion,
		AppDir:        DefaultAppDir,
		UID:           DefaultUID,
		GID:           DefaultGID,
		TagSuffix:     os.Getenv("GANGWAY_TAG_SUFFIX"),
	}
	cfg.Apply(opts...)
	return cfg
}

// VenvDir returns the in-project virtual environment path inside the image.
func (c *Config) VenvDir() string {
	return c.AppDir + "/.venv"
}

// LockfilePath returns the host path of the project's poetry.lock.
func (c *Config) LockfilePath() string {
	return filepath.Join(c.ProjectRoot, "poetry.lock")
}

// ManifestPath returns the host path of the project's pyproject.toml.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.ProjectRoot, "pyproject.toml")
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithServerSettings returns an Option that sets the server tuning.
func WithServerSettings(s deployfile.ServerSettings) Option {
	return func(c *Config) {
		c.Server = s
	}
}

// WithBaseImage returns an Option that overrides the base image.
// An empty value keeps the default.
func WithBaseImage(img string) Option {
	return func(c *Config) {
		if img != "" {
			c.BaseImage = img
		}
	}
}

// WithPoetryVersion returns an Option that pins the Poetry version.
// An empty value keeps the default.
func WithPoetryVersion(version string) Option {
	return func(c *Config) {
		if version != "" {
			c.PoetryVersion = version
		}
	}
}

// WithSystemPackages returns an Option that adds runtime apt packages.
func WithSystemPackages(pkgs []string) Option {
	return func(c *Config) {
		c.SystemPackages = pkgs
	}
}

// WithForceRebuild returns an Option that sets ForceRebuild on the config.
func WithForceRebuild(force bool) Option {
	return func(c *Config) {
		c.ForceRebuild = force
	}
}

// WithNoCache returns an Option that disables the engine layer cache.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithTagSuffix returns an Option that sets TagSuffix on the config.
// This is primarily used for test isolation to ensure parallel tests
// don't compete for the same image tags.
func WithTagSuffix(suffix string) Option {
	return func(c *Config) {
		c.TagSuffix = suffix
	}
}

// WithScratchDir returns an Option that sets the build context parent directory.
func WithScratchDir(dir string) Option {
	return func(c *Config) {
		c.ScratchDir = dir
	}
}
