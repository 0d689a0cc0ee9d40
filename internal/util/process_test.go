package util

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollUntil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := PollConfig{Timeout: time.Second, Interval: 5 * time.Millisecond}

	t.Run("immediately true", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, PollUntil(ctx, cfg, func() bool { return true }))
	})

	t.Run("becomes true", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		err := PollUntil(ctx, cfg, func() bool { return calls.Add(1) >= 3 })
		require.NoError(t, err)
		assert.GreaterOrEqual(t, calls.Load(), int32(3))
	})

	t.Run("times out", func(t *testing.T) {
		t.Parallel()
		err := PollUntil(ctx, PollConfig{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond},
			func() bool { return false })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := PollUntil(cctx, cfg, func() bool { return false })
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("checks at the interval", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		err := PollUntil(ctx, PollConfig{Timeout: 100 * time.Millisecond, Interval: 40 * time.Millisecond},
			func() bool { calls.Add(1); return false })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
		assert.LessOrEqual(t, calls.Load(), int32(4))
	})

	t.Run("zero config falls back to defaults", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, PollUntil(ctx, PollConfig{}, func() bool { return true }))
		assert.Equal(t, PollConfig{Timeout: 10 * time.Second, Interval: 25 * time.Millisecond}, DaemonPollConfig())
	})
}

func TestIsProcessRunning(t *testing.T) {
	t.Parallel()

	assert.True(t, IsProcessRunning(os.Getpid()))
	assert.False(t, IsProcessRunning(0))
	assert.False(t, IsProcessRunning(-1))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, IsProcessRunning(cmd.Process.Pid), "exited and reaped")
}

func TestStopProcess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := PollConfig{Timeout: 100 * time.Millisecond, Interval: 5 * time.Millisecond}

	t.Run("graceful", func(t *testing.T) {
		t.Parallel()
		var stopped atomic.Bool
		err := StopProcess(ctx, -1, cfg,
			func() error { stopped.Store(true); return nil },
			func() bool { return !stopped.Load() })
		assert.NoError(t, err)
	})

	t.Run("killed after timeout", func(t *testing.T) {
		t.Parallel()
		proc, err := StartBackgroundProcess("sleep", []string{"30"}, nil)
		require.NoError(t, err)
		pid := proc.Pid

		err = StopProcess(ctx, pid, cfg, nil, func() bool { return IsProcessRunning(pid) })
		require.NoError(t, err)

		g := NewWithT(t)
		g.Eventually(func() bool { return IsProcessRunning(pid) }).Should(BeFalse())
	})
}
