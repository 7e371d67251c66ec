// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gangway-cli/internal/config"
	"gangway-cli/internal/pydeps"
	"gangway-cli/internal/venv"
	"gangway-cli/pkg/deployfile"

	"github.com/spf13/cobra"
)

const testManifest = `
[tool.poetry]
name = "orders-api"
version = "1.2.0"
description = "Order management API"

[tool.poetry.dependencies]
python = "^3.12"
fastapi = "^0.111.0"

[build-system]
requires = ["poetry-core"]
build-backend = "poetry.core.masonry.api"
`

const testLockfile = `
[[package]]
name = "fastapi"
version = "0.111.0"
description = "FastAPI framework"
optional = false
python-versions = ">=3.8"

[metadata]
lock-version = "2.0"
python-versions = "^3.12"
content-hash = "f00db4c0ffee"
`

const testDeployfile = `
[app]
name = "orders-api"
target = "orders.main:app"
`

// writeProject creates a consistent Poetry project with a deployfile.
func writeProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"pyproject.toml": testManifest,
		"poetry.lock":    testLockfile,
		"gangway.toml":   testDeployfile,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	app, err := NewApp(Dependencies{Stdout: &out, Stderr: &out})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return app, &out
}

func TestArgsAfterDash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "args after separator",
			args: []string{"--", "python", "-m", "app.worker"},
			want: []string{"python", "-m", "app.worker"},
		},
		{
			name: "no separator treats all positionals as the command",
			args: []string{"python", "-m", "app.worker"},
			want: []string{"python", "-m", "app.worker"},
		},
		{
			name: "flags before separator are not part of the command",
			args: []string{"--count", "2", "--", "sleep", "60"},
			want: []string{"sleep", "60"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []string
			c := &cobra.Command{
				Use:  "probe",
				Args: cobra.ArbitraryArgs,
				RunE: func(cmd *cobra.Command, args []string) error {
					got = argsAfterDash(cmd, args)
					return nil
				},
			}
			c.Flags().Int("count", 0, "")
			c.SetArgs(tt.args)
			if err := c.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("argsAfterDash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildImageConfig_Precedence(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Build.BaseImage = "python:3.11-slim"
	cfg.Build.CacheDir = config.CacheDirPath(t.TempDir())

	t.Run("deployfile overrides tool config", func(t *testing.T) {
		t.Parallel()

		df, err := deployfile.Parse([]byte(testDeployfile + "\n[build]\nbase_image = \"python:3.13-slim\"\n"))
		if err != nil {
			t.Fatal(err)
		}
		imgCfg, err := buildImageConfig(df, cfg, t.TempDir())
		if err != nil {
			t.Fatalf("buildImageConfig() error = %v", err)
		}
		if imgCfg.BaseImage != "python:3.13-slim" {
			t.Errorf("BaseImage = %q, want deployfile value", imgCfg.BaseImage)
		}
	})

	t.Run("tool config fills deployfile gaps", func(t *testing.T) {
		t.Parallel()

		df, err := deployfile.Parse([]byte(testDeployfile))
		if err != nil {
			t.Fatal(err)
		}
		imgCfg, err := buildImageConfig(df, cfg, t.TempDir())
		if err != nil {
			t.Fatalf("buildImageConfig() error = %v", err)
		}
		if imgCfg.BaseImage != "python:3.11-slim" {
			t.Errorf("BaseImage = %q, want tool config value", imgCfg.BaseImage)
		}
		if imgCfg.ScratchDir != cfg.Build.CacheDir.String() {
			t.Errorf("ScratchDir = %q, want configured cache dir", imgCfg.ScratchDir)
		}
	})
}

func TestRunCheck(t *testing.T) {
	t.Parallel()

	t.Run("consistent project passes", func(t *testing.T) {
		t.Parallel()

		app, out := newTestApp(t)
		root := writeProject(t)

		if err := runCheck(app, root); err != nil {
			t.Fatalf("runCheck() error = %v", err)
		}
		if !strings.Contains(out.String(), "lock is consistent") {
			t.Errorf("output missing consistency line: %q", out.String())
		}
	})

	t.Run("manifest drift fails", func(t *testing.T) {
		t.Parallel()

		app, _ := newTestApp(t)
		root := writeProject(t)

		drifted := strings.Replace(testManifest,
			`fastapi = "^0.111.0"`,
			"fastapi = \"^0.111.0\"\nhttpx = \"^0.27.0\"", 1)
		if err := os.WriteFile(filepath.Join(root, "pyproject.toml"), []byte(drifted), 0o644); err != nil {
			t.Fatal(err)
		}

		err := runCheck(app, root)
		if !errors.Is(err, pydeps.ErrLockInconsistent) {
			t.Errorf("runCheck() error = %v, want ErrLockInconsistent", err)
		}
	})

	t.Run("missing deployfile fails", func(t *testing.T) {
		t.Parallel()

		app, _ := newTestApp(t)
		err := runCheck(app, t.TempDir())
		if !errors.Is(err, deployfile.ErrDeployfileNotFound) {
			t.Errorf("runCheck() error = %v, want ErrDeployfileNotFound", err)
		}
	})
}

func TestRunUp_MissingEnv(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)
	root := writeProject(t)

	err := runUp(app, root, nil)
	if err == nil {
		t.Fatal("runUp() succeeded with no virtual environment")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("runUp() error = %T, want *ExitError", err)
	}
	if exitErr.Code != 1 {
		t.Errorf("Code = %d, want 1", exitErr.Code)
	}
	if !errors.Is(err, venv.ErrEnvMissing) {
		t.Errorf("error chain %v missing venv.ErrEnvMissing", err)
	}
}

func TestServeSettings(t *testing.T) {
	t.Parallel()

	t.Run("defaults without deployfile", func(t *testing.T) {
		t.Parallel()

		got, err := serveSettings(t.TempDir())
		if err != nil {
			t.Fatalf("serveSettings() error = %v", err)
		}
		want := (&deployfile.Deployfile{}).Settings()
		if got != want {
			t.Errorf("serveSettings() = %+v, want defaults %+v", got, want)
		}
	})

	t.Run("deployfile tuning wins", func(t *testing.T) {
		t.Parallel()

		root := writeProject(t)
		tuned := testDeployfile + "\n[server]\nworkers = 9\n"
		if err := os.WriteFile(filepath.Join(root, "gangway.toml"), []byte(tuned), 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := serveSettings(root)
		if err != nil {
			t.Fatalf("serveSettings() error = %v", err)
		}
		if got.Workers != 9 {
			t.Errorf("Workers = %d, want 9", got.Workers)
		}
	})
}
