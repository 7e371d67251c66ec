// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `
[tool.poetry]
name = "profile-api"
version = "0.1.0"
description = "Web API starter"

[tool.poetry.dependencies]
python = "^3.12"
fastapi = "^0.110"
gunicorn = "^21.2"
uvicorn = { version = "^0.29", extras = ["standard"] }

[build-system]
requires = ["poetry-core"]
build-backend = "poetry.core.masonry.api"
`

const sampleLock = `
[[package]]
name = "fastapi"
version = "0.110.3"
description = "FastAPI framework"
optional = false
python-versions = ">=3.8"

[[package]]
name = "gunicorn"
version = "21.2.0"
description = "WSGI HTTP Server"
optional = false
python-versions = ">=3.5"

[[package]]
name = "uvicorn"
version = "0.29.0"
description = "ASGI server"
optional = false
python-versions = ">=3.8"

[metadata]
lock-version = "2.0"
python-versions = "^3.12"
content-hash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
`

func TestParseManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error: %v", err)
	}

	if m.Name != "profile-api" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.PythonConstraint != "^3.12" {
		t.Errorf("PythonConstraint = %q", m.PythonConstraint)
	}
	if _, ok := m.Dependencies["python"]; ok {
		t.Error("python pseudo-dependency should not appear in Dependencies")
	}
	if got := m.Dependencies["uvicorn"]; got != "^0.29" {
		t.Errorf("uvicorn constraint = %q, want table version field", got)
	}
	if m.BuildSystem.Backend != "poetry.core.masonry.api" {
		t.Errorf("BuildSystem.Backend = %q", m.BuildSystem.Backend)
	}

	want := []string{"fastapi", "gunicorn", "uvicorn"}
	got := m.DependencyNames()
	if len(got) != len(want) {
		t.Fatalf("DependencyNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DependencyNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseManifest_GitDependency(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`
[tool.poetry.dependencies]
mylib = { git = "https://example.com/mylib.git" }
`))
	if err != nil {
		t.Fatalf("ParseManifest() error: %v", err)
	}
	if got := m.Dependencies["mylib"]; got != "git:https://example.com/mylib.git" {
		t.Errorf("mylib constraint = %q", got)
	}
}

func TestParseManifest_InvalidTOML(t *testing.T) {
	t.Parallel()

	if _, err := ParseManifest([]byte("[tool.poetry\nname =")); err == nil {
		t.Error("expected parse error for invalid TOML")
	}
}

func TestParseLockfile(t *testing.T) {
	t.Parallel()

	lf, err := ParseLockfile([]byte(sampleLock))
	if err != nil {
		t.Fatalf("ParseLockfile() error: %v", err)
	}

	if len(lf.Packages) != 3 {
		t.Fatalf("len(Packages) = %d, want 3", len(lf.Packages))
	}
	if lf.ContentHash() == "" {
		t.Error("ContentHash() is empty")
	}
	if pkg := lf.Package("FastAPI"); pkg == nil || pkg.Version != "0.110.3" {
		t.Errorf("Package(\"FastAPI\") = %+v, want case-insensitive match", pkg)
	}
	if lf.Package("missing") != nil {
		t.Error("Package(\"missing\") should be nil")
	}

	versions := lf.ExactVersions()
	if versions["gunicorn"] != "21.2.0" {
		t.Errorf("ExactVersions()[gunicorn] = %q", versions["gunicorn"])
	}
}

func TestLoadManifest_NotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadManifest(filepath.Join(t.TempDir(), ManifestFileName))
	if !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("err = %v, want ErrManifestNotFound", err)
	}
}

func TestLoadLockfile_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	if err := os.WriteFile(path, []byte(sampleLock), 0o644); err != nil {
		t.Fatal(err)
	}

	lf, err := LoadLockfile(path)
	if err != nil {
		t.Fatalf("LoadLockfile() error: %v", err)
	}
	if len(lf.Packages) != 3 {
		t.Errorf("len(Packages) = %d", len(lf.Packages))
	}

	if _, err := LoadLockfile(filepath.Join(dir, "nope.lock")); !errors.Is(err, ErrLockfileNotFound) {
		t.Errorf("err = %v, want ErrLockfileNotFound", err)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	manifest, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	lock, err := ParseLockfile([]byte(sampleLock))
	if err != nil {
		t.Fatal(err)
	}

	if err := Verify(manifest, lock); err != nil {
		t.Errorf("Verify() on consistent inputs: %v", err)
	}
}

func TestVerify_Inconsistencies(t *testing.T) {
	t.Parallel()

	manifest, _ := ParseManifest([]byte(sampleManifest))
	base, _ := ParseLockfile([]byte(sampleLock))

	tests := []struct {
		name   string
		mutate func(m *Manifest, l *Lockfile)
	}{
		{
			name:   "missing content hash",
			mutate: func(_ *Manifest, l *Lockfile) { l.Metadata.ContentHash = "" },
		},
		{
			name:   "missing lock version",
			mutate: func(_ *Manifest, l *Lockfile) { l.Metadata.LockVersion = "" },
		},
		{
			name:   "python constraint mismatch",
			mutate: func(m *Manifest, _ *Lockfile) { m.PythonConstraint = "^3.9" },
		},
		{
			name:   "unlocked direct dependency",
			mutate: func(m *Manifest, _ *Lockfile) { m.Dependencies["redis"] = "^5.0" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := *manifest
			m.Dependencies = make(map[string]string, len(manifest.Dependencies))
			for k, v := range manifest.Dependencies {
				m.Dependencies[k] = v
			}
			l := *base

			tt.mutate(&m, &l)

			err := Verify(&m, &l)
			if !errors.Is(err, ErrLockInconsistent) {
				t.Errorf("Verify() = %v, want ErrLockInconsistent", err)
			}
		})
	}
}

func TestPackage_NameNormalization(t *testing.T) {
	t.Parallel()

	lock := &Lockfile{Packages: []LockedPackage{
		{Name: "zope.interface", Version: "6.4"},
		{Name: "ruamel.yaml.clib", Version: "0.2.8"},
		{Name: "typing_extensions", Version: "4.12.2"},
	}}

	tests := []struct {
		query string
		want  string
	}{
		{"zope-interface", "6.4"},
		{"Zope.Interface", "6.4"},
		{"ruamel-yaml-clib", "0.2.8"},
		{"ruamel.yaml_clib", "0.2.8"},
		{"typing-extensions", "4.12.2"},
	}
	for _, tt := range tests {
		pkg := lock.Package(tt.query)
		if pkg == nil {
			t.Errorf("Package(%q) = nil, want version %s", tt.query, tt.want)
			continue
		}
		if pkg.Version != tt.want {
			t.Errorf("Package(%q).Version = %s, want %s", tt.query, pkg.Version, tt.want)
		}
	}
}

func TestVerify_DottedDependencyName(t *testing.T) {
	t.Parallel()

	manifest, _ := ParseManifest([]byte(sampleManifest))
	lock, _ := ParseLockfile([]byte(sampleLock))

	m := *manifest
	m.Dependencies = make(map[string]string, len(manifest.Dependencies)+1)
	for k, v := range manifest.Dependencies {
		m.Dependencies[k] = v
	}
	m.Dependencies["zope.interface"] = "^6.0"

	l := *lock
	l.Packages = append(append([]LockedPackage{}, lock.Packages...),
		LockedPackage{Name: "zope-interface", Version: "6.4"})

	if err := Verify(&m, &l); err != nil {
		t.Errorf("Verify() must match dotted and dashed spellings: %v", err)
	}
}

func TestVerify_NilInputs(t *testing.T) {
	t.Parallel()

	if err := Verify(nil, &Lockfile{}); !errors.Is(err, ErrLockInconsistent) {
		t.Errorf("nil manifest: %v", err)
	}
	if err := Verify(&Manifest{}, nil); !errors.Is(err, ErrLockInconsistent) {
		t.Errorf("nil lockfile: %v", err)
	}
}
