package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// StartBackgroundProcess starts a detached background process.
// The process will continue running after the parent exits.
func StartBackgroundProcess(executable string, args []string, env []string) (*os.Process, error) {
	cmd := exec.Command(executable, args...)
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // detach from terminal
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	// Reap the child if it exits while we run.
	go cmd.Wait()
	return cmd.Process, nil
}

// StartIfNeeded runs the current executable with args in the background
// unless isRunning already reports true, then polls until it does.
func StartIfNeeded(ctx context.Context, cfg PollConfig, isRunning func() bool, args []string) error {
	if isRunning() {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if _, err := StartBackgroundProcess(exe, args, nil); err != nil {
		return err
	}
	if err := PollUntil(ctx, cfg, isRunning); err != nil {
		return fmt.Errorf("process did not start in time")
	}
	return nil
}

// StopProcess asks a process to stop, then kills it if it is still
// running after cfg.Timeout. gracefulStop may be nil.
func StopProcess(ctx context.Context, pid int, cfg PollConfig, gracefulStop func() error, isRunning func() bool) error {
	if gracefulStop != nil {
		// Failures fall through to the kill below.
		_ = gracefulStop()
	}
	if PollUntil(ctx, cfg, func() bool { return !isRunning() }) == nil {
		return nil
	}

	if pid <= 0 {
		return fmt.Errorf("process did not stop and has no PID to kill")
	}
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGKILL)
	}
	time.Sleep(500 * time.Millisecond)
	if isRunning() {
		return fmt.Errorf("failed to stop process (PID %d)", pid)
	}
	return nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, sending signal 0 checks if process exists
	return proc.Signal(syscall.Signal(0)) == nil
}
