// SPDX-License-Identifier: MPL-2.0

package prefork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"gangway-cli/internal/issue"
)

// HeartbeatEnvVar carries the per-worker heartbeat file path into the
// worker's environment.
const HeartbeatEnvVar = "GANGWAY_HEARTBEAT"

const (
	defaultWorkers            = 4
	defaultHeartbeatInterval  = time.Second
	defaultHeartbeatTolerance = 30 * time.Second
	defaultGracefulTimeout    = 30 * time.Second
	defaultRespawnBudget      = 3
)

// ErrRespawnBudgetExhausted is the sentinel error wrapped by the master's
// shutdown error when workers fail faster than the budget allows.
var ErrRespawnBudgetExhausted = errors.New("worker respawn budget exhausted")

// ErrPreloadFailed is the sentinel error wrapped when the preload probe
// fails before any worker was spawned.
var ErrPreloadFailed = errors.New("preload probe failed")

type (
	// Command describes the process run for each worker slot.
	Command struct {
		// Path is the executable to run.
		Path string
		// Args are the arguments, not including the executable itself.
		Args []string
		// Env is the base environment; the master appends the heartbeat
		// variable per worker. Nil means inherit the master's environment.
		Env []string
		// Dir is the working directory. Empty means inherit.
		Dir string
	}

	// Options tunes the master's supervision behavior.
	Options struct {
		// Workers is the number of worker slots (default 4).
		Workers int
		// HeartbeatInterval is how often the watchdog inspects heartbeat
		// files (default 1s).
		HeartbeatInterval time.Duration
		// HeartbeatTolerance is the staleness threshold after which a worker
		// is considered hung and killed (default 30s).
		HeartbeatTolerance time.Duration
		// GracefulTimeout bounds the drain window; workers still alive after
		// it are killed (default 30s).
		GracefulTimeout time.Duration
		// RespawnBudget is the total number of respawns tolerated over the
		// master's lifetime (default 3). Reloads do not count against it.
		RespawnBudget int
		// PreloadProbe, when set, runs to completion before any worker is
		// spawned. A failing probe aborts the master with zero workers.
		PreloadProbe *Command
		// HeartbeatDir overrides the directory for heartbeat files.
		// Empty means a fresh temp directory per run.
		HeartbeatDir string
		// Stdout and Stderr receive worker output. Nil means the master's own.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Master owns a pool of worker processes.
	Master struct {
		cmd    Command
		opts   Options
		logger *log.Logger

		workers  map[int]*worker
		exits    chan workerExit
		shutdown chan struct{}
		reload   chan struct{}

		respawns int
	}

	worker struct {
		slot    int
		proc    *exec.Cmd
		hbPath  string
		started time.Time
	}

	workerExit struct {
		slot int
		err  error
	}
)

// NewMaster creates a Master running cmd in every worker slot.
func NewMaster(cmd Command, opts Options) *Master {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.HeartbeatTolerance <= 0 {
		opts.HeartbeatTolerance = defaultHeartbeatTolerance
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = defaultGracefulTimeout
	}
	if opts.RespawnBudget <= 0 {
		opts.RespawnBudget = defaultRespawnBudget
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return &Master{
		cmd:      cmd,
		opts:     opts,
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "prefork"}),
		workers:  make(map[int]*worker),
		exits:    make(chan workerExit, opts.Workers*2),
		shutdown: make(chan struct{}, 1),
		reload:   make(chan struct{}, 1),
	}
}

// Shutdown requests a graceful drain. Safe to call from any goroutine;
// repeated calls are no-ops.
func (m *Master) Shutdown() {
	select {
	case m.shutdown <- struct{}{}:
	default:
	}
}

// Reload requests an in-place restart of every worker.
func (m *Master) Reload() {
	select {
	case m.reload <- struct{}{}:
	default:
	}
}

// Respawns reports how much of the respawn budget has been spent.
// Only meaningful after Run returns.
func (m *Master) Respawns() int {
	return m.respawns
}

// Run executes the preload probe, spawns the pool, and supervises it until
// a shutdown request, context cancellation, or budget exhaustion.
func (m *Master) Run(ctx context.Context) error {
	if err := m.runPreloadProbe(ctx); err != nil {
		return err
	}

	hbDir := m.opts.HeartbeatDir
	if hbDir == "" {
		dir, err := os.MkdirTemp("", "gangway-hb-*")
		if err != nil {
			return fmt.Errorf("create heartbeat directory: %w", err)
		}
		defer os.RemoveAll(dir)
		hbDir = dir
	}

	for slot := 0; slot < m.opts.Workers; slot++ {
		if err := m.spawn(slot, hbDir); err != nil {
			m.drain()
			return fmt.Errorf("spawn worker %d: %w", slot, err)
		}
	}
	m.logger.Info("pool started", "workers", m.opts.Workers)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watchdog := time.NewTicker(m.opts.HeartbeatInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("context canceled, draining")
			m.drain()
			return nil

		case <-m.shutdown:
			m.logger.Info("shutdown requested, draining")
			m.drain()
			return nil

		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				m.logger.Info("reload requested")
				if err := m.reloadWorkers(hbDir); err != nil {
					m.drain()
					return err
				}
				continue
			}
			m.logger.Info("signal received, draining", "signal", sig)
			m.drain()
			return nil

		case <-m.reload:
			m.logger.Info("reload requested")
			if err := m.reloadWorkers(hbDir); err != nil {
				m.drain()
				return err
			}

		case exit := <-m.exits:
			w, live := m.workers[exit.slot]
			if !live {
				// Exit from a worker already replaced or drained.
				continue
			}
			delete(m.workers, exit.slot)
			m.logger.Warn("worker exited unexpectedly",
				"slot", exit.slot, "uptime", time.Since(w.started).Round(time.Millisecond), "err", exit.err)

			if err := m.respawn(exit.slot, hbDir); err != nil {
				m.drain()
				return err
			}

		case <-watchdog.C:
			if err := m.reapStaleWorkers(hbDir); err != nil {
				m.drain()
				return err
			}
		}
	}
}

// runPreloadProbe runs the probe exactly once. Probe failure is fatal and
// guarantees no worker was started.
func (m *Master) runPreloadProbe(ctx context.Context) error {
	probe := m.opts.PreloadProbe
	if probe == nil {
		return nil
	}

	m.logger.Debug("running preload probe", "path", probe.Path)
	cmd := exec.CommandContext(ctx, probe.Path, probe.Args...)
	cmd.Env = probe.Env
	cmd.Dir = probe.Dir
	cmd.Stdout = m.opts.Stdout
	cmd.Stderr = m.opts.Stderr

	if err := cmd.Run(); err != nil {
		return issue.NewErrorContext().
			WithOperation("preload application").
			WithResource(probe.Path).
			WithSuggestion("Check the probe output above for the import failure").
			WithSuggestion("Verify the app target points at an importable module").
			WithSuggestion("Run the application module directly to reproduce").
			Wrap(fmt.Errorf("%w: %w", ErrPreloadFailed, err)).
			BuildError()
	}
	return nil
}

// spawn starts a worker in the given slot with a fresh heartbeat file.
func (m *Master) spawn(slot int, hbDir string) error {
	hbPath := filepath.Join(hbDir, fmt.Sprintf("worker-%d", slot))

	// Seed the heartbeat so a slow-starting worker isn't reaped before its
	// first beat.
	if err := os.WriteFile(hbPath, nil, 0o600); err != nil {
		return fmt.Errorf("seed heartbeat file: %w", err)
	}

	env := m.cmd.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(append([]string{}, env...), HeartbeatEnvVar+"="+hbPath)

	proc := exec.Command(m.cmd.Path, m.cmd.Args...)
	proc.Env = env
	proc.Dir = m.cmd.Dir
	proc.Stdout = m.opts.Stdout
	proc.Stderr = m.opts.Stderr

	if err := proc.Start(); err != nil {
		return err
	}

	w := &worker{slot: slot, proc: proc, hbPath: hbPath, started: time.Now()}
	m.workers[slot] = w

	go func() {
		err := proc.Wait()
		m.exits <- workerExit{slot: slot, err: err}
	}()

	m.logger.Debug("worker started", "slot", slot, "pid", proc.Process.Pid)
	return nil
}

// respawn replaces a dead worker, drawing from the respawn budget.
func (m *Master) respawn(slot int, hbDir string) error {
	m.respawns++
	if m.respawns > m.opts.RespawnBudget {
		return issue.NewErrorContext().
			WithOperation("supervise worker pool").
			WithSuggestion("Inspect worker logs for the recurring crash").
			WithSuggestion("Raise respawn_budget if restarts are expected during warmup").
			WithSuggestion("Check memory limits; the kernel OOM killer leaves no worker logs").
			Wrap(fmt.Errorf("%w: %d respawns", ErrRespawnBudgetExhausted, m.respawns-1)).
			BuildError()
	}

	m.logger.Info("respawning worker", "slot", slot, "respawns", m.respawns, "budget", m.opts.RespawnBudget)
	if err := m.spawn(slot, hbDir); err != nil {
		return fmt.Errorf("respawn worker %d: %w", slot, err)
	}
	return nil
}

// reapStaleWorkers kills workers whose heartbeat is older than the
// tolerance. The kill surfaces as a normal exit and goes through respawn.
func (m *Master) reapStaleWorkers(hbDir string) error {
	now := time.Now()
	for _, w := range m.workers {
		info, err := os.Stat(w.hbPath)
		if err != nil {
			// Missing heartbeat file counts as stale.
			m.logger.Warn("heartbeat file unreadable, killing worker", "slot", w.slot, "err", err)
			_ = w.proc.Process.Kill() //nolint:errcheck // Process may already be gone
			continue
		}
		if age := now.Sub(info.ModTime()); age > m.opts.HeartbeatTolerance {
			m.logger.Warn("worker heartbeat stale, killing",
				"slot", w.slot, "age", age.Round(time.Millisecond), "tolerance", m.opts.HeartbeatTolerance)
			_ = w.proc.Process.Kill() //nolint:errcheck // Process may already be gone
		}
	}
	return nil
}

// reloadWorkers drains the current pool and spawns a fresh one. Reload
// respawns do not count against the budget.
func (m *Master) reloadWorkers(hbDir string) error {
	m.drain()
	for slot := 0; slot < m.opts.Workers; slot++ {
		if err := m.spawn(slot, hbDir); err != nil {
			return fmt.Errorf("reload worker %d: %w", slot, err)
		}
	}
	m.logger.Info("pool reloaded", "workers", m.opts.Workers)
	return nil
}

// drain asks every live worker to terminate and waits up to the graceful
// timeout before killing stragglers. On return the pool is empty.
func (m *Master) drain() {
	if len(m.workers) == 0 {
		return
	}

	for _, w := range m.workers {
		_ = w.proc.Process.Signal(syscall.SIGTERM) //nolint:errcheck // Process may already be gone
	}

	deadline := time.NewTimer(m.opts.GracefulTimeout)
	defer deadline.Stop()

	for len(m.workers) > 0 {
		select {
		case exit := <-m.exits:
			delete(m.workers, exit.slot)
		case <-deadline.C:
			m.logger.Warn("graceful timeout exceeded, killing remaining workers", "remaining", len(m.workers))
			for _, w := range m.workers {
				_ = w.proc.Process.Kill() //nolint:errcheck // Process may already be gone
			}
			// Collect the forced exits so their Wait goroutines finish.
			for len(m.workers) > 0 {
				exit := <-m.exits
				delete(m.workers, exit.slot)
			}
			return
		}
	}
}
