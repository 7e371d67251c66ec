// SPDX-License-Identifier: MPL-2.0

package deployfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the canonical deployfile name looked up in the project root.
const FileName = "gangway.toml"

// Default server tuning applied when the deployfile leaves fields unset.
const (
	DefaultPort            = 8632
	DefaultWorkers         = 4
	DefaultWorkerClass     = "uvicorn.workers.UvicornWorker"
	DefaultLoop            = "uvloop"
	DefaultTimeout         = 120 * time.Second
	DefaultGracefulTimeout = 30 * time.Second
	DefaultRespawnBudget   = 3
)

var (
	// ErrDeployfileNotFound is returned when no gangway.toml exists in the project root.
	ErrDeployfileNotFound = errors.New("deployfile not found")

	// ErrDeployfileInvalid is the sentinel error wrapped by all validation failures.
	ErrDeployfileInvalid = errors.New("invalid deployfile")
)

type (
	// Deployfile is the root of a parsed gangway.toml.
	Deployfile struct {
		App    AppConfig    `toml:"app"`
		Server ServerConfig `toml:"server"`
		Build  BuildConfig  `toml:"build"`
	}

	// AppConfig identifies the application to serve.
	AppConfig struct {
		// Name is the deployment name used in image tags. Defaults to the
		// directory name of the project root when empty.
		Name string `toml:"name"`
		// Target is the "module.path:attribute" reference to the app callable.
		Target AppTarget `toml:"target"`
	}

	// ServerConfig tunes the pre-fork app server.
	ServerConfig struct {
		Port        int    `toml:"port"`
		Workers     int    `toml:"workers"`
		WorkerClass string `toml:"worker_class"`
		Loop        string `toml:"loop"`
		// Timeout is the per-worker request timeout, in Go duration syntax.
		Timeout string `toml:"timeout"`
		// GracefulTimeout bounds the drain window after SIGTERM.
		GracefulTimeout string `toml:"graceful_timeout"`
		// Preload loads the application once in the master before forking.
		// Defaults to true; a deployfile must opt out explicitly.
		Preload *bool `toml:"preload"`
		// RespawnBudget is the number of worker respawns tolerated within the
		// watchdog window before the master gives up.
		RespawnBudget int `toml:"respawn_budget"`
	}

	// BuildConfig overrides image build defaults.
	BuildConfig struct {
		BaseImage     string `toml:"base_image"`
		PoetryVersion string `toml:"poetry_version"`
		// SystemPackages are extra apt packages installed in the runtime stage.
		SystemPackages []string `toml:"system_packages"`
	}
)

// ServerSettings is the normalized server tuning with durations parsed
// and defaults applied.
type ServerSettings struct {
	Port            int
	Workers         int
	WorkerClass     string
	Loop            string
	Timeout         time.Duration
	GracefulTimeout time.Duration
	Preload         bool
	RespawnBudget   int
}

// Load reads and parses the deployfile in the given project root.
func Load(projectRoot string) (*Deployfile, error) {
	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDeployfileNotFound, path)
		}
		return nil, fmt.Errorf("reading deployfile %q: %w", path, err)
	}

	df, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing deployfile %q: %w", path, err)
	}

	if df.App.Name == "" {
		abs, absErr := filepath.Abs(projectRoot)
		if absErr != nil {
			abs = projectRoot
		}
		df.App.Name = filepath.Base(abs)
	}

	return df, nil
}

// Parse decodes and validates a deployfile from raw TOML bytes.
func Parse(data []byte) (*Deployfile, error) {
	var df Deployfile

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&df); err != nil {
		return nil, err
	}

	if err := df.Validate(); err != nil {
		return nil, err
	}

	return &df, nil
}

// Validate checks the deployfile for structural errors.
func (d *Deployfile) Validate() error {
	var errs []error

	if err := d.App.Target.Validate(); err != nil {
		errs = append(errs, err)
	}
	if d.Server.Port < 0 || d.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port %d out of range", ErrDeployfileInvalid, d.Server.Port))
	}
	if d.Server.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers must not be negative", ErrDeployfileInvalid))
	}
	if d.Server.RespawnBudget < 0 {
		errs = append(errs, fmt.Errorf("%w: respawn_budget must not be negative", ErrDeployfileInvalid))
	}
	if _, err := parseDuration("timeout", d.Server.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrDeployfileInvalid, err))
	}
	if _, err := parseDuration("graceful_timeout", d.Server.GracefulTimeout); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrDeployfileInvalid, err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Settings returns the server tuning with defaults applied and durations parsed.
// Validate must have succeeded; Settings panics on unparseable durations.
func (d *Deployfile) Settings() ServerSettings {
	s := ServerSettings{
		Port:          d.Server.Port,
		Workers:       d.Server.Workers,
		WorkerClass:   d.Server.WorkerClass,
		Loop:          d.Server.Loop,
		Preload:       true,
		RespawnBudget: d.Server.RespawnBudget,
	}

	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Workers == 0 {
		s.Workers = DefaultWorkers
	}
	if s.WorkerClass == "" {
		s.WorkerClass = DefaultWorkerClass
	}
	if s.Loop == "" {
		s.Loop = DefaultLoop
	}
	if s.RespawnBudget == 0 {
		s.RespawnBudget = DefaultRespawnBudget
	}
	if d.Server.Preload != nil {
		s.Preload = *d.Server.Preload
	}

	s.Timeout = mustDuration("timeout", d.Server.Timeout, DefaultTimeout)
	s.GracefulTimeout = mustDuration("graceful_timeout", d.Server.GracefulTimeout, DefaultGracefulTimeout)

	return s
}

func mustDuration(fieldName, value string, def time.Duration) time.Duration {
	d, err := parseDuration(fieldName, value)
	if err != nil {
		panic(fmt.Sprintf("deployfile: %v (call Validate first)", err))
	}
	if d == 0 {
		return def
	}
	return d
}

// parseDuration parses a Go duration string and rejects zero or negative values.
// Returns (0, nil) when value is empty (caller should apply default).
func parseDuration(fieldName, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", fieldName, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", fieldName, value)
	}
	return d, nil
}
