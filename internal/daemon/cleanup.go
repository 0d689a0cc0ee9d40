package daemon

import (
	"os"
	"strings"

	"homefs/internal/config"
	"homefs/internal/util"
)

// CleanupResult contains the result of a cleanup operation
type CleanupResult struct {
	CleanedPidFile bool // Whether PID file was cleaned
	CleanedSocket  bool // Whether socket file was cleaned
}

// Cleaned reports whether anything was removed.
func (r *CleanupResult) Cleaned() bool {
	return r.CleanedPidFile || r.CleanedSocket
}

// CleanupStale removes the pid file and socket left behind by a daemon that
// exited without cleaning up. Nothing is touched while a daemon answers on
// the socket.
func CleanupStale() *CleanupResult {
	result := &CleanupResult{}
	if IsDaemonRunning() {
		return result
	}
	result.CleanedPidFile = cleanupStalePidFile()
	result.CleanedSocket = cleanupStaleSocket()
	return result
}

// cleanupStalePidFile removes the PID file if its process is gone or the
// file is unreadable.
func cleanupStalePidFile() bool {
	pidPath := config.PidPath()
	if _, err := os.Stat(pidPath); err != nil {
		return false
	}

	pid, err := GetPID()
	if err == nil && util.IsProcessRunning(pid) {
		return false
	}
	return os.Remove(pidPath) == nil
}

// cleanupStaleSocket removes socket file if daemon isn't running
func cleanupStaleSocket() bool {
	socketPath := config.SocketPath()
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return false
	}
	if IsDaemonRunning() {
		return false
	}
	return os.Remove(socketPath) == nil
}

// FormatCleanupResult formats a cleanup result for display
func FormatCleanupResult(result *CleanupResult) string {
	if !result.Cleaned() {
		return "No cleanup needed"
	}
	var parts []string
	if result.CleanedPidFile {
		parts = append(parts, "Cleaned up stale PID file")
	}
	if result.CleanedSocket {
		parts = append(parts, "Cleaned up stale socket file")
	}
	return strings.Join(parts, "\n")
}
