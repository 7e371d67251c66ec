// SPDX-License-Identifier: MPL-2.0

package deployfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleDeployfile = `
[app]
name = "orders-api"
target = "orders.main:app"

[server]
port = 9000
workers = 8
timeout = "90s"
graceful_timeout = "15s"
preload = false
respawn_budget = 5

[build]
base_image = "python:3.12-slim-bookworm"
poetry_version = "1.8.3"
system_packages = ["libpq5"]
`

func TestParse_Full(t *testing.T) {
	t.Parallel()

	df, err := Parse([]byte(sampleDeployfile))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if df.App.Name != "orders-api" {
		t.Errorf("App.Name = %q, want %q", df.App.Name, "orders-api")
	}
	if df.App.Target != "orders.main:app" {
		t.Errorf("App.Target = %q, want %q", df.App.Target, "orders.main:app")
	}
	if df.Build.BaseImage != "python:3.12-slim-bookworm" {
		t.Errorf("Build.BaseImage = %q", df.Build.BaseImage)
	}

	s := df.Settings()
	if s.Port != 9000 {
		t.Errorf("Settings().Port = %d, want 9000", s.Port)
	}
	if s.Workers != 8 {
		t.Errorf("Settings().Workers = %d, want 8", s.Workers)
	}
	if s.Timeout != 90*time.Second {
		t.Errorf("Settings().Timeout = %v, want 90s", s.Timeout)
	}
	if s.GracefulTimeout != 15*time.Second {
		t.Errorf("Settings().GracefulTimeout = %v, want 15s", s.GracefulTimeout)
	}
	if s.Preload {
		t.Error("Settings().Preload should be false when the deployfile opts out")
	}
	if s.RespawnBudget != 5 {
		t.Errorf("Settings().RespawnBudget = %d, want 5", s.RespawnBudget)
	}
}

func TestParse_DefaultsApplied(t *testing.T) {
	t.Parallel()

	df, err := Parse([]byte("[app]\ntarget = \"app.main:app\"\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	s := df.Settings()
	if s.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", s.Port, DefaultPort)
	}
	if s.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want default %d", s.Workers, DefaultWorkers)
	}
	if s.WorkerClass != DefaultWorkerClass {
		t.Errorf("WorkerClass = %q, want default %q", s.WorkerClass, DefaultWorkerClass)
	}
	if s.Loop != DefaultLoop {
		t.Errorf("Loop = %q, want default %q", s.Loop, DefaultLoop)
	}
	if s.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default %v", s.Timeout, DefaultTimeout)
	}
	if s.GracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want default %v", s.GracefulTimeout, DefaultGracefulTimeout)
	}
	if !s.Preload {
		t.Error("Preload should default to true")
	}
	if s.RespawnBudget != DefaultRespawnBudget {
		t.Errorf("RespawnBudget = %d, want default %d", s.RespawnBudget, DefaultRespawnBudget)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		toml string
		want error
	}{
		{
			name: "missing target",
			toml: "[app]\nname = \"x\"\n",
			want: ErrInvalidAppTarget,
		},
		{
			name: "malformed target",
			toml: "[app]\ntarget = \"no-colon\"\n",
			want: ErrInvalidAppTarget,
		},
		{
			name: "port out of range",
			toml: "[app]\ntarget = \"app.main:app\"\n[server]\nport = 70000\n",
			want: ErrDeployfileInvalid,
		},
		{
			name: "negative workers",
			toml: "[app]\ntarget = \"app.main:app\"\n[server]\nworkers = -1\n",
			want: ErrDeployfileInvalid,
		},
		{
			name: "bad timeout",
			toml: "[app]\ntarget = \"app.main:app\"\n[server]\ntimeout = \"soon\"\n",
			want: ErrDeployfileInvalid,
		},
		{
			name: "negative timeout",
			toml: "[app]\ntarget = \"app.main:app\"\n[server]\ntimeout = \"-5s\"\n",
			want: ErrDeployfileInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.toml))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("[app]\ntarget = \"app.main:app\"\ntragte = \"typo\"\n"))
	if err == nil {
		t.Error("Parse() should reject unknown fields")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(sampleDeployfile), 0o644); err != nil {
		t.Fatal(err)
	}

	df, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if df.App.Name != "orders-api" {
		t.Errorf("App.Name = %q", df.App.Name)
	}
}

func TestLoad_NameDefaultsToDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "[app]\ntarget = \"app.main:app\"\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	df, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if df.App.Name != filepath.Base(dir) {
		t.Errorf("App.Name = %q, want directory name %q", df.App.Name, filepath.Base(dir))
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	if _, err := Load(t.TempDir()); !errors.Is(err, ErrDeployfileNotFound) {
		t.Errorf("Load() error = %v, want ErrDeployfileNotFound", err)
	}
}
