// SPDX-License-Identifier: MPL-2.0

package image

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"gangway-cli/internal/container"
	"gangway-cli/internal/issue"
	"gangway-cli/internal/pydeps"
)

// Builder runs multi-stage image builds for a single project.
//
// Built images are cached by a tag derived from the lock file content
// and the build configuration, so rebuilding an unchanged project is a
// no-op. Concurrent builds of the same project are serialized with a
// cross-process file lock.
type Builder struct {
	engine container.Engine
	config *Config
	logger *log.Logger

	// Output receives engine build output. Defaults to os.Stderr.
	Output io.Writer
}

// Result contains the output of a build operation.
type Result struct {
	// ImageTag is the tag of the built image (e.g., "gangway-orders-api:9f86d081a2c3").
	ImageTag container.ImageTag

	// Cached reports whether the image already existed and no build ran.
	Cached bool
}

// NewBuilder creates a Builder for the given engine and configuration.
func NewBuilder(engine container.Engine, cfg *Config) *Builder {
	if cfg == nil {
		cfg = NewConfig("", "", "")
	}
	return &Builder{
		engine: engine,
		config: cfg,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "build"}),
		Output: os.Stderr,
	}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Build verifies the project's dependency declarations, then builds (or
// reuses) the deployment image. The returned tag is only ever applied by a
// completed build: on failure any partially applied tag is removed before
// the error is returned.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	if err := b.verifyDependencies(); err != nil {
		return nil, err
	}

	tag, err := b.Tag()
	if err != nil {
		return nil, fmt.Errorf("failed to calculate image tag: %w", err)
	}

	if !b.config.ForceRebuild {
		exists, _ := b.engine.ImageExists(ctx, tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			b.logger.Debug("image cache hit", "tag", tag)
			return &Result{ImageTag: tag, Cached: true}, nil
		}
	}

	// Serialize concurrent builds of the same tag across processes.
	lock, err := acquireBuildLock(string(tag))
	if err == nil {
		defer lock.Release()
	} else if !errors.Is(err, errFlockUnavailable) {
		return nil, fmt.Errorf("failed to acquire build lock: %w", err)
	}

	// Re-check under the lock: another process may have finished the build
	// while this one was waiting.
	if !b.config.ForceRebuild {
		exists, _ := b.engine.ImageExists(ctx, tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			return &Result{ImageTag: tag, Cached: true}, nil
		}
	}

	if err := b.buildImage(ctx, tag); err != nil {
		// A failed build must not leave a usable tag behind. The engine only
		// applies the tag at the end of a successful build, but remove any
		// stale tag from a prior run for good measure.
		_ = b.engine.RemoveImage(ctx, tag, true) //nolint:errcheck // Best-effort cleanup

		return nil, issue.NewErrorContext().
			WithOperation("build deployment image").
			WithResource(string(tag)).
			WithSuggestion("Inspect the build output above for the failing stage").
			WithSuggestion("Check that poetry.lock is consistent (try: poetry check --lock)").
			WithSuggestion("Run with --no-cache to rule out stale build layers").
			Wrap(err).
			BuildError()
	}

	b.logger.Info("image built", "tag", tag)
	return &Result{ImageTag: tag, Cached: false}, nil
}

// Tag returns the tag that a build would produce without building it.
// Useful for checking whether an image is cached.
func (b *Builder) Tag() (container.ImageTag, error) {
	key, err := b.calculateCacheKey()
	if err != nil {
		return "", err
	}
	return b.buildTag(key[:12]), nil
}

// IsBuilt checks whether the image for the current project state exists.
func (b *Builder) IsBuilt(ctx context.Context) (bool, error) {
	tag, err := b.Tag()
	if err != nil {
		return false, err
	}
	return b.engine.ImageExists(ctx, tag)
}

// buildTag constructs the image tag with optional suffix.
// When TagSuffix is set, the tag format is "gangway-<app>:<hash>-<suffix>".
// This enables test isolation by making each test's images unique.
func (b *Builder) buildTag(hash string) container.ImageTag {
	if b.config.TagSuffix != "" {
		return container.ImageTag(fmt.Sprintf("gangway-%s:%s-%s", b.config.AppName, hash, b.config.TagSuffix))
	}
	return container.ImageTag(fmt.Sprintf("gangway-%s:%s", b.config.AppName, hash))
}

// verifyDependencies loads the manifest and lock file and checks them for
// consistency before any container work starts.
func (b *Builder) verifyDependencies() error {
	manifest, err := pydeps.LoadManifest(b.config.ManifestPath())
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("load project manifest").
			WithResource(b.config.ManifestPath()).
			WithSuggestion("Check that the project root contains a pyproject.toml").
			WithSuggestion("Run from the project directory or pass --project").
			Wrap(err).
			BuildError()
	}

	lockfile, err := pydeps.LoadLockfile(b.config.LockfilePath())
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("load dependency lock file").
			WithResource(b.config.LockfilePath()).
			WithSuggestion("Generate the lock file (try: poetry lock)").
			WithSuggestion("Commit poetry.lock alongside pyproject.toml").
			Wrap(err).
			BuildError()
	}

	if err := pydeps.Verify(manifest, lockfile); err != nil {
		return issue.NewErrorContext().
			WithOperation("verify dependency lock file").
			WithResource(b.config.LockfilePath()).
			WithSuggestion("Regenerate the lock file (try: poetry lock --no-update)").
			WithSuggestion("Check that pyproject.toml and poetry.lock are from the same commit").
			Wrap(err).
			BuildError()
	}

	return nil
}

// calculateCacheKey generates a unique key from the lock file content and
// every generated build input. Any change that could alter the image
// produces a new key.
func (b *Builder) calculateCacheKey() (string, error) {
	h := sha256.New()

	lockHash, err := CalculateFileHash(b.config.LockfilePath())
	if err != nil {
		return "", fmt.Errorf("failed to hash lock file: %w", err)
	}
	h.Write([]byte("lock:" + lockHash))

	manifestHash, err := CalculateFileHash(b.config.ManifestPath())
	if err != nil {
		return "", fmt.Errorf("failed to hash manifest: %w", err)
	}
	h.Write([]byte("manifest:" + manifestHash))

	// The generated files capture base image, Poetry version, server tuning,
	// target, and ownership, so hashing them covers the whole configuration.
	h.Write([]byte("dockerfile:" + generateDockerfile(b.config)))
	h.Write([]byte("entrypoint:" + generateEntrypoint(b.config)))
	h.Write([]byte("serverconf:" + RenderServerConf(b.config.Server)))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// buildImage materializes the build context and runs the engine build.
func (b *Builder) buildImage(ctx context.Context, tag container.ImageTag) error {
	buildCtx, cleanup, err := b.prepareBuildContext()
	if err != nil {
		return err
	}
	defer cleanup()

	buildOpts := container.BuildOptions{
		ContextDir: container.HostFilesystemPath(buildCtx),
		Dockerfile: dockerfileName,
		Tag:        tag,
		NoCache:    b.config.NoCache,
		Stdout:     b.Output,
		Stderr:     b.Output,
	}

	return b.engine.Build(ctx, buildOpts)
}

// prepareBuildContext creates a temporary directory holding the project
// sources and all generated build inputs.
//
// Note: Docker installed via Snap has limited filesystem access and cannot
// read /tmp or hidden directories under $HOME. The scratch parent therefore
// defaults to a visible directory, overridable via the config cache dir.
func (b *Builder) prepareBuildContext() (buildContextDir string, cleanup func(), err error) {
	parent := b.config.ScratchDir
	if parent == "" {
		if home, homeErr := os.UserHomeDir(); homeErr == nil {
			if _, statErr := os.Stat(home); statErr == nil {
				parent = filepath.Join(home, "gangway-build")
			}
		}
	}
	if parent == "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			parent = filepath.Join(cwd, ".gangway-build")
		} else {
			parent = filepath.Join(os.TempDir(), "gangway-build")
		}
	}

	if mkdirErr := os.MkdirAll(parent, 0o755); mkdirErr != nil {
		return "", nil, fmt.Errorf("failed to create build context parent directory: %w", mkdirErr)
	}

	tmpDir, err := os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	cleanup = func() {
		_ = os.RemoveAll(tmpDir) // Cleanup temp dir; error non-critical
	}

	if err := CopyProjectDir(b.config.ProjectRoot, tmpDir); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to copy project into build context: %w", err)
	}

	entrypoint := generateEntrypoint(b.config)
	if err := validateShellScript(entrypointName, entrypoint); err != nil {
		cleanup()
		return "", nil, err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, entrypointName), []byte(entrypoint), 0o755); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write entrypoint: %w", err)
	}

	serverConf := RenderServerConf(b.config.Server)
	if err := os.WriteFile(filepath.Join(tmpDir, ServerConfName), []byte(serverConf), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write server configuration: %w", err)
	}

	dockerfile := generateDockerfile(b.config)
	if err := os.WriteFile(filepath.Join(tmpDir, dockerfileName), []byte(dockerfile), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	return tmpDir, cleanup, nil
}
