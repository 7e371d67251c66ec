// SPDX-License-Identifier: MPL-2.0

package image

import (
	"fmt"
	"strings"
)

// Well-known file names inside the generated build context.
const (
	dockerfileName = "Dockerfile"
	entrypointName = "entrypoint.sh"

	// ServerConfName is the app server configuration file baked next to the
	// application sources; the supervisor references the same name at runtime.
	ServerConfName = "gangway_server.py"
)

// poetryHome is where the dedicated poetry stage installs the tool. Only
// this directory crosses the stage boundary into the builder.
const poetryHome = "/opt/poetry"

// generateDockerfile creates the three-stage Dockerfile content for the build.
//
// The poetry stage installs the pinned dependency manager into its own venv;
// the only output consumed downstream is that directory, so the tool's own
// dependencies never mix with the application's. The builder stage validates
// the lock file against the manifest before installing so a drifted lock
// fails the build instead of producing an image that silently diverges from
// it. The runtime stage receives only the application directory and runs as
// an unprivileged numeric user.
func generateDockerfile(cfg *Config) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# syntax=docker/dockerfile:1\n\n")

	// --- Poetry stage ---
	fmt.Fprintf(&sb, "FROM %s AS poetry\n\n", cfg.BaseImage)

	sb.WriteString("ENV PIP_DISABLE_PIP_VERSION_CHECK=1 \\\n")
	sb.WriteString("    PIP_NO_CACHE_DIR=1\n\n")

	fmt.Fprintf(&sb, "RUN python -m venv %s \\\n", poetryHome)
	fmt.Fprintf(&sb, "    && %s/bin/pip install poetry==%s\n\n", poetryHome, cfg.PoetryVersion)

	// --- Builder stage ---
	fmt.Fprintf(&sb, "FROM %s AS builder\n\n", cfg.BaseImage)

	fmt.Fprintf(&sb, "COPY --from=poetry %s %s\n\n", poetryHome, poetryHome)

	fmt.Fprintf(&sb, "ENV PATH=\"%s/bin:$PATH\" \\\n", poetryHome)
	sb.WriteString("    PIP_DISABLE_PIP_VERSION_CHECK=1 \\\n")
	sb.WriteString("    PIP_NO_CACHE_DIR=1 \\\n")
	sb.WriteString("    POETRY_NO_INTERACTION=1 \\\n")
	sb.WriteString("    POETRY_VIRTUALENVS_IN_PROJECT=1\n\n")

	fmt.Fprintf(&sb, "WORKDIR %s\n\n", cfg.AppDir)

	// Dependency layers first so source edits don't bust the install cache.
	sb.WriteString("COPY pyproject.toml poetry.lock ./\n")
	sb.WriteString("RUN poetry check --lock\n")
	sb.WriteString("RUN poetry install --only main --no-root\n\n")

	sb.WriteString("COPY . .\n")
	sb.WriteString("RUN poetry install --only main\n\n")

	// --- Runtime stage ---
	fmt.Fprintf(&sb, "FROM %s AS runtime\n\n", cfg.BaseImage)

	if len(cfg.SystemPackages) > 0 {
		sb.WriteString("RUN apt-get update \\\n")
		fmt.Fprintf(&sb, "    && apt-get install -y --no-install-recommends %s \\\n",
			strings.Join(cfg.SystemPackages, " "))
		sb.WriteString("    && rm -rf /var/lib/apt/lists/*\n\n")
	}

	sb.WriteString("ENV PYTHONUNBUFFERED=1 \\\n")
	sb.WriteString("    PYTHONDONTWRITEBYTECODE=1\n\n")

	fmt.Fprintf(&sb, "COPY --from=builder --chown=%d:%d %s %s\n\n", cfg.UID, cfg.GID, cfg.AppDir, cfg.AppDir)

	fmt.Fprintf(&sb, "WORKDIR %s\n", cfg.AppDir)
	fmt.Fprintf(&sb, "USER %d:%d\n\n", cfg.UID, cfg.GID)

	fmt.Fprintf(&sb, "EXPOSE %d\n\n", cfg.Server.Port)

	fmt.Fprintf(&sb, "ENTRYPOINT [\"%s/%s\"]\n", cfg.AppDir, entrypointName)

	return sb.String()
}
