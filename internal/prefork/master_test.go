// SPDX-License-Identifier: MPL-2.0

package prefork

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnixShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("worker fixtures require /bin/sh")
	}
}

// shellWorker builds a Command running the given shell script.
func shellWorker(script string) Command {
	return Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

// runMaster runs m in a goroutine and returns the result channel.
func runMaster(ctx context.Context, m *Master) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx)
	}()
	return errCh
}

func TestMaster_PreloadProbeFailure(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	probe := shellWorker("exit 3")
	m := NewMaster(shellWorker("sleep 60"), Options{
		Workers:      2,
		PreloadProbe: &probe,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
	})

	err := m.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when the preload probe fails")
	}
	if !strings.Contains(err.Error(), "preload application") {
		t.Errorf("error should be actionable: %v", err)
	}
	if m.Respawns() != 0 {
		t.Error("no worker may be spawned after a failed probe")
	}
}

func TestMaster_ShutdownDrainsGracefully(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	m := NewMaster(shellWorker(`trap 'exit 0' TERM; while :; do sleep 0.05; done`), Options{
		Workers:            2,
		HeartbeatInterval:  50 * time.Millisecond,
		HeartbeatTolerance: 10 * time.Second,
		GracefulTimeout:    5 * time.Second,
		Stdout:             io.Discard,
		Stderr:             io.Discard,
	})

	errCh := runMaster(context.Background(), m)

	time.Sleep(300 * time.Millisecond)
	m.Shutdown()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("master did not drain in time")
	}
}

func TestMaster_CrashingWorkerExhaustsBudget(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	m := NewMaster(shellWorker("exit 1"), Options{
		Workers:            1,
		HeartbeatInterval:  50 * time.Millisecond,
		HeartbeatTolerance: 10 * time.Second,
		GracefulTimeout:    time.Second,
		RespawnBudget:      2,
		Stdout:             io.Discard,
		Stderr:             io.Discard,
	})

	select {
	case err := <-runMaster(context.Background(), m):
		if !errors.Is(err, ErrRespawnBudgetExhausted) {
			t.Errorf("Run() error = %v, want ErrRespawnBudgetExhausted", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("master did not give up in time")
	}

	if m.Respawns() != 3 {
		t.Errorf("Respawns() = %d, want 3 (budget 2 plus the exceeding attempt)", m.Respawns())
	}
}

func TestMaster_WatchdogReapsStaleWorker(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	// The worker never touches its heartbeat file, so the watchdog must
	// kill it; with budget 1 the second reap exhausts the budget.
	m := NewMaster(shellWorker("sleep 60"), Options{
		Workers:            1,
		HeartbeatInterval:  50 * time.Millisecond,
		HeartbeatTolerance: 150 * time.Millisecond,
		GracefulTimeout:    time.Second,
		RespawnBudget:      1,
		Stdout:             io.Discard,
		Stderr:             io.Discard,
	})

	select {
	case err := <-runMaster(context.Background(), m):
		if !errors.Is(err, ErrRespawnBudgetExhausted) {
			t.Errorf("Run() error = %v, want ErrRespawnBudgetExhausted", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watchdog never reaped the stale worker")
	}
}

func TestMaster_BeatingWorkerSurvives(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	m := NewMaster(shellWorker(`while :; do touch "$GANGWAY_HEARTBEAT"; sleep 0.02; done`), Options{
		Workers:            1,
		HeartbeatInterval:  50 * time.Millisecond,
		HeartbeatTolerance: 300 * time.Millisecond,
		GracefulTimeout:    time.Second,
		RespawnBudget:      1,
		Stdout:             io.Discard,
		Stderr:             io.Discard,
	})

	errCh := runMaster(context.Background(), m)

	// Long enough for several tolerance windows to elapse.
	time.Sleep(time.Second)
	m.Shutdown()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("master did not drain in time")
	}

	if m.Respawns() != 0 {
		t.Errorf("beating worker was respawned %d times", m.Respawns())
	}
}

func TestMaster_ContextCancellationDrains(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	m := NewMaster(shellWorker(`trap 'exit 0' TERM; while :; do sleep 0.05; done`), Options{
		Workers:            1,
		HeartbeatInterval:  50 * time.Millisecond,
		HeartbeatTolerance: 10 * time.Second,
		GracefulTimeout:    5 * time.Second,
		Stdout:             io.Discard,
		Stderr:             io.Discard,
	})

	errCh := runMaster(ctx, m)
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("master did not drain on cancellation")
	}
}

func TestRunPulse_HeartbeatAdvances(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	hbPath := filepath.Join(t.TempDir(), "hb")
	if err := os.WriteFile(hbPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(hbPath)
	if err != nil {
		t.Fatal(err)
	}

	code, err := RunPulse(context.Background(), []string{"/bin/sh", "-c", "sleep 0.3"}, PulseOptions{
		HeartbeatPath: hbPath,
		Interval:      50 * time.Millisecond,
		Stdout:        io.Discard,
		Stderr:        io.Discard,
	})
	if err != nil {
		t.Fatalf("RunPulse() error: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	after, err := os.Stat(hbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().After(before.ModTime()) {
		t.Error("heartbeat mtime did not advance while the child ran")
	}
}

func TestRunPulse_PropagatesExitCode(t *testing.T) {
	requireUnixShell(t)
	t.Parallel()

	code, err := RunPulse(context.Background(), []string{"/bin/sh", "-c", "exit 7"}, PulseOptions{
		HeartbeatPath: filepath.Join(t.TempDir(), "hb"),
		Stdout:        io.Discard,
		Stderr:        io.Discard,
	})
	if err != nil {
		t.Fatalf("RunPulse() error: %v", err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}

func TestRunPulse_RequiresHeartbeatPath(t *testing.T) {
	requireUnixShell(t)
	t.Setenv(HeartbeatEnvVar, "")

	_, err := RunPulse(context.Background(), []string{"/bin/sh", "-c", "true"}, PulseOptions{})
	if !errors.Is(err, ErrNoHeartbeatPath) {
		t.Errorf("RunPulse() error = %v, want ErrNoHeartbeatPath", err)
	}
}

func TestRunPulse_RequiresCommand(t *testing.T) {
	t.Parallel()

	if _, err := RunPulse(context.Background(), nil, PulseOptions{HeartbeatPath: "/tmp/hb"}); err == nil {
		t.Error("RunPulse() should reject an empty command")
	}
}
