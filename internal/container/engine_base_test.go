// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func TestBaseCLIEngine_BuildArgs(t *testing.T) {
	t.Parallel()
	engine := NewBaseCLIEngine("/usr/bin/docker")

	tests := []struct {
		name     string
		opts     BuildOptions
		expected []string
	}{
		{
			name: "minimal build",
			opts: BuildOptions{
				ContextDir: ".",
			},
			expected: []string{"build", "."},
		},
		{
			name: "build with tag",
			opts: BuildOptions{
				ContextDir: "/app",
				Tag:        "gangway-api:latest",
			},
			expected: []string{"build", "-t", "gangway-api:latest", "/app"},
		},
		{
			name: "build with dockerfile",
			opts: BuildOptions{
				ContextDir: "/app",
				Dockerfile: "Dockerfile.custom",
			},
			expected: []string{"build", "-f", filepath.Join("/app", "Dockerfile.custom"), "/app"},
		},
		{
			name: "build with absolute dockerfile",
			opts: BuildOptions{
				ContextDir: "/app",
				Dockerfile: "/custom/Dockerfile",
			},
			expected: []string{"build", "-f", "/custom/Dockerfile", "/app"},
		},
		{
			name: "build with no-cache",
			opts: BuildOptions{
				ContextDir: ".",
				NoCache:    true,
			},
			expected: []string{"build", "--no-cache", "."},
		},
		{
			name: "build with build args",
			opts: BuildOptions{
				ContextDir: "/app",
				BuildArgs:  map[string]string{"POETRY_VERSION": "1.8.3"},
			},
			expected: []string{"build", "--build-arg", "POETRY_VERSION=1.8.3", "/app"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := engine.BuildArgs(tt.opts)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBaseCLIEngine_RunArgs(t *testing.T) {
	t.Parallel()
	engine := NewBaseCLIEngine("/usr/bin/docker")

	opts := RunOptions{
		Image:   "gangway-api:latest",
		Command: []string{"gangway", "up"},
		WorkDir: "/srv/app",
		Remove:  true,
		Name:    "api",
		Ports:   []PortMapping{{HostPort: 8632, ContainerPort: 8632}},
		Volumes: []VolumeMount{{HostPath: "/tmp/data", ContainerPath: "/data", ReadOnly: true}},
	}

	got := engine.RunArgs(opts)

	expected := []string{
		"run", "--rm", "--name", "api", "-w", "/srv/app",
		"-v", "/tmp/data:/data:ro",
		"-p", "8632:8632",
		"gangway-api:latest", "gangway", "up",
	}
	if !slices.Equal(got, expected) {
		t.Errorf("RunArgs() = %v, want %v", got, expected)
	}
}

func TestBaseCLIEngine_RemoveArgs(t *testing.T) {
	t.Parallel()
	engine := NewBaseCLIEngine("/usr/bin/docker")

	if got := engine.RemoveArgs("abc123", false); !slices.Equal(got, []string{"rm", "abc123"}) {
		t.Errorf("RemoveArgs() = %v", got)
	}
	if got := engine.RemoveArgs("abc123", true); !slices.Equal(got, []string{"rm", "-f", "abc123"}) {
		t.Errorf("RemoveArgs(force) = %v", got)
	}
	if got := engine.RemoveImageArgs("img:tag", true); !slices.Equal(got, []string{"rmi", "-f", "img:tag"}) {
		t.Errorf("RemoveImageArgs(force) = %v", got)
	}
}

func TestVolumeMount_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mount    VolumeMount
		expected string
	}{
		{
			name:     "plain",
			mount:    VolumeMount{HostPath: "/a", ContainerPath: "/b"},
			expected: "/a:/b",
		},
		{
			name:     "read-only",
			mount:    VolumeMount{HostPath: "/a", ContainerPath: "/b", ReadOnly: true},
			expected: "/a:/b:ro",
		},
		{
			name:     "selinux shared",
			mount:    VolumeMount{HostPath: "/a", ContainerPath: "/b", SELinux: SELinuxLabelShared},
			expected: "/a:/b:z",
		},
		{
			name:     "read-only with selinux",
			mount:    VolumeMount{HostPath: "/a", ContainerPath: "/b", ReadOnly: true, SELinux: SELinuxLabelPrivate},
			expected: "/a:/b:ro,Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.mount.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestVolumeMount_Validate(t *testing.T) {
	t.Parallel()

	valid := VolumeMount{HostPath: "/a", ContainerPath: "/b"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid mount: %v", err)
	}

	invalid := VolumeMount{HostPath: "  ", ContainerPath: "/b", SELinux: "bogus"}
	err := invalid.Validate()
	if !errors.Is(err, ErrInvalidHostFilesystemPath) {
		t.Errorf("expected ErrInvalidHostFilesystemPath in %v", err)
	}
	if !errors.Is(err, ErrInvalidSELinuxLabel) {
		t.Errorf("expected ErrInvalidSELinuxLabel in %v", err)
	}
}

func TestParsePortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    PortMapping
		wantErr bool
	}{
		{
			name:  "plain",
			input: "8632:8632",
			want:  PortMapping{HostPort: 8632, ContainerPort: 8632},
		},
		{
			name:  "udp",
			input: "5000:3682/udp",
			want:  PortMapping{HostPort: 5000, ContainerPort: 3682, Protocol: PortProtocolUDP},
		},
		{
			name:    "missing separator",
			input:   "8632",
			wantErr: true,
		},
		{
			name:    "zero port",
			input:   "0:8632",
			wantErr: true,
		},
		{
			name:    "bad protocol",
			input:   "1:2/sctp",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePortMapping(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParsePortMapping(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortMapping(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePortMapping(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPortMapping(t *testing.T) {
	t.Parallel()

	if got := FormatPortMapping(PortMapping{HostPort: 80, ContainerPort: 8632}); got != "80:8632" {
		t.Errorf("tcp default = %q", got)
	}
	if got := FormatPortMapping(PortMapping{HostPort: 80, ContainerPort: 8632, Protocol: PortProtocolUDP}); got != "80:8632/udp" {
		t.Errorf("udp = %q", got)
	}
}
