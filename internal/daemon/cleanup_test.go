package daemon

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/config"
)

func TestFormatCleanupResult(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No cleanup needed", FormatCleanupResult(&CleanupResult{}))
	assert.Equal(t, "Cleaned up stale PID file\nCleaned up stale socket file",
		FormatCleanupResult(&CleanupResult{CleanedPidFile: true, CleanedSocket: true}))
	assert.Equal(t, "Cleaned up stale socket file", FormatCleanupResult(&CleanupResult{CleanedSocket: true}))
}

func TestCleanupStale(t *testing.T) {
	t.Run("nothing to clean", func(t *testing.T) {
		t.Setenv(config.EnvConfigDir, t.TempDir())
		result := CleanupStale()
		assert.False(t, result.Cleaned())
	})

	t.Run("unreadable pid file and dead socket", func(t *testing.T) {
		t.Setenv(config.EnvConfigDir, t.TempDir())
		require.NoError(t, os.WriteFile(config.PidPath(), []byte("garbage"), 0o600))
		require.NoError(t, os.WriteFile(config.SocketPath(), nil, 0o600))

		result := CleanupStale()
		assert.True(t, result.CleanedPidFile)
		assert.True(t, result.CleanedSocket)
		assert.NoFileExists(t, config.PidPath())
		assert.NoFileExists(t, config.SocketPath())
	})

	t.Run("pid of a live process is kept", func(t *testing.T) {
		t.Setenv(config.EnvConfigDir, t.TempDir())
		require.NoError(t, os.WriteFile(config.PidPath(), []byte(strconv.Itoa(os.Getpid())), 0o600))

		result := CleanupStale()
		assert.False(t, result.CleanedPidFile)
		assert.FileExists(t, config.PidPath())

		pid, err := GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})
}
