// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"gangway-cli/internal/image"
	"gangway-cli/internal/venv"
	"gangway-cli/pkg/deployfile"
)

const (
	// PhaseStart is the initial phase before any work happens.
	PhaseStart Phase = "start"
	// PhaseActivatingEnv covers virtual environment location and activation.
	PhaseActivatingEnv Phase = "activating-env"
	// PhaseExecServer is entered immediately before the exec handoff.
	// It is only observable when the exec itself fails.
	PhaseExecServer Phase = "exec-server"
	// PhaseFatal is the terminal phase for any failure before the handoff.
	PhaseFatal Phase = "fatal"
)

type (
	// Phase identifies how far the supervisor got. The normal lifecycle is
	// start -> activating-env -> exec-server; any failure lands in fatal.
	Phase string

	// ExecFunc replaces the current process image. The default is the
	// platform exec syscall; tests inject a recorder.
	ExecFunc func(argv0 string, argv []string, envv []string) error

	// Supervisor boots the app server for one application directory.
	Supervisor struct {
		appDir   string
		target   deployfile.AppTarget
		settings deployfile.ServerSettings

		// extraArgs, when non-empty, replace the default server command
		// entirely and are exec'd verbatim after activation.
		extraArgs []string

		execFn  ExecFunc
		environ func() []string
		logger  *log.Logger

		phase Phase
	}

	// SupervisorOption configures a Supervisor.
	SupervisorOption func(*Supervisor)
)

// New creates a Supervisor for the application rooted at appDir.
func New(appDir string, target deployfile.AppTarget, settings deployfile.ServerSettings, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		appDir:   appDir,
		target:   target,
		settings: settings,
		execFn:   execProcess,
		environ:  os.Environ,
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "serve"}),
		phase:    PhaseStart,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithExecFunc sets a custom exec function for testing.
func WithExecFunc(fn ExecFunc) SupervisorOption {
	return func(s *Supervisor) {
		s.execFn = fn
	}
}

// WithEnviron sets a custom environment source for testing.
func WithEnviron(fn func() []string) SupervisorOption {
	return func(s *Supervisor) {
		s.environ = fn
	}
}

// WithExtraArgs sets a command that is exec'd verbatim in the activated
// environment instead of the default app server. This is the escape hatch
// for alternative entrypoints (running tests, a shell, a migration); the
// supervisor does not interpret the arguments.
func WithExtraArgs(args []string) SupervisorOption {
	return func(s *Supervisor) {
		s.extraArgs = args
	}
}

// Phase returns the last phase the supervisor reached.
func (s *Supervisor) Phase() Phase {
	return s.phase
}

// Run locates the virtual environment, activates it, and replaces the
// current process with the app server. On success Run never returns.
// Any returned error means the server was not started.
func (s *Supervisor) Run() error {
	if err := s.target.Validate(); err != nil {
		s.phase = PhaseFatal
		return err
	}

	s.phase = PhaseActivatingEnv
	act, err := venv.LocateIn(s.appDir)
	if err != nil {
		s.phase = PhaseFatal
		return venv.MissingEnvIssue(s.appDir, err)
	}

	env := act.Apply(s.environ())
	argv, err := s.commandArgv(act)
	if err != nil {
		s.phase = PhaseFatal
		return err
	}

	s.logger.Debug("handing off to app server", "argv", argv)

	s.phase = PhaseExecServer
	if err := s.execFn(argv[0], argv, env); err != nil {
		// Exec only returns on failure; the process image is unchanged.
		s.phase = PhaseFatal
		return fmt.Errorf("exec app server %s: %w", argv[0], err)
	}

	// Unreachable with a real exec; injected test funcs return nil.
	return nil
}

// commandArgv builds the command the supervisor hands off to. Trailing
// arguments, when present, are the whole command; otherwise the default
// app server line is built.
func (s *Supervisor) commandArgv(act *venv.Activation) ([]string, error) {
	if len(s.extraArgs) > 0 {
		return s.escapeArgv(act)
	}
	return s.serverArgv(act)
}

// escapeArgv resolves the caller's verbatim command against the activated
// environment. The venv bin directory wins over the inherited PATH, the
// same precedence activation gives a shell.
func (s *Supervisor) escapeArgv(act *venv.Activation) ([]string, error) {
	argv0 := s.extraArgs[0]
	if !strings.Contains(argv0, "/") {
		resolved, err := resolveCommand(act, argv0)
		if err != nil {
			return nil, err
		}
		argv0 = resolved
	}
	return append([]string{argv0}, s.extraArgs[1:]...), nil
}

func resolveCommand(act *venv.Activation, name string) (string, error) {
	candidate := filepath.Join(act.BinDir, name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode().Perm()&0o111 != 0 {
		return candidate, nil
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve command %q: %w", name, err)
	}
	return resolved, nil
}

// serverArgv builds the default app server command line, mirroring the
// in-image entrypoint: the baked server configuration file carries bind,
// worker count, worker class, and event loop; timeout and preload stay on
// the command line where an operator can see them in the process list.
func (s *Supervisor) serverArgv(act *venv.Activation) ([]string, error) {
	conf, err := s.serverConfPath()
	if err != nil {
		return nil, err
	}

	argv := []string{
		act.BinDir + "/gunicorn",
		"-c", conf,
		"--timeout", strconv.Itoa(int(s.settings.Timeout.Seconds())),
	}
	if s.settings.Preload {
		argv = append(argv, "--preload")
	}
	argv = append(argv, s.target.String())
	return argv, nil
}

// serverConfPath returns the server configuration file for the handoff.
// Inside a deployment image the file was baked next to the application;
// outside one the same content is rendered to a temporary file.
func (s *Supervisor) serverConfPath() (string, error) {
	baked := filepath.Join(s.appDir, image.ServerConfName)
	if info, err := os.Stat(baked); err == nil && !info.IsDir() {
		return baked, nil
	}

	f, err := os.CreateTemp("", "gangway-server-*.py")
	if err != nil {
		return "", fmt.Errorf("write server configuration: %w", err)
	}
	if _, err := f.WriteString(image.RenderServerConf(s.settings)); err != nil {
		f.Close() //nolint:errcheck
		return "", fmt.Errorf("write server configuration: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write server configuration: %w", err)
	}
	return f.Name(), nil
}
