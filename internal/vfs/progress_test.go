package vfs

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// progressLog records every snapshot handed to OnProgress.
type progressLog struct {
	mu        sync.Mutex
	snapshots [][]OperationProgress
}

func (l *progressLog) record(ops []OperationProgress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, ops)
}

func (l *progressLog) all() [][]OperationProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]OperationProgress(nil), l.snapshots...)
}

func TestOperationProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*testEnv, *progressLog, func()) {
		l := &progressLog{}
		env, cleanup := testFiles(t, func(o *Options) { o.OnProgress = l.record })
		writeFile(t, env.sys("home", "Docs", "a.txt"), strings.Repeat("a", 1000))
		writeFile(t, env.sys("home", "Docs", "Sub", "b.txt"), strings.Repeat("b", 24))
		return env, l, cleanup
	}

	t.Run("copy reports start completion and removal", func(t *testing.T) {
		t.Parallel()
		env, l, cleanup := setup(t)
		defer cleanup()

		_, err := env.files.Copy(ctx, "/Home/Docs", "/Apps", false)
		require.NoError(t, err)

		snapshots := l.all()
		require.GreaterOrEqual(t, len(snapshots), 3)

		first := snapshots[0]
		require.Len(t, first, 1)
		assert.Equal(t, OperationCopy, first[0].Type)
		assert.Equal(t, "/Home/Docs", first[0].Source)
		assert.Equal(t, "/Apps/Docs", first[0].Destination)
		assert.EqualValues(t, 1024, first[0].TotalBytes)
		assert.Zero(t, first[0].Percent)
		assert.NotEmpty(t, first[0].ID)

		done := snapshots[len(snapshots)-2]
		require.Len(t, done, 1)
		assert.Equal(t, first[0].ID, done[0].ID)
		assert.EqualValues(t, 1024, done[0].CopiedBytes)
		assert.Equal(t, float64(100), done[0].Percent)

		assert.Empty(t, snapshots[len(snapshots)-1])
		assert.Empty(t, env.files.OperationsInProgress())
	})

	t.Run("cross-device move reports a move", func(t *testing.T) {
		t.Parallel()
		env, l, cleanup := setup(t)
		defer cleanup()
		env.files.forceCopyMove = true

		v, err := env.files.Move(ctx, "/Home/Docs", "/Apps", false)
		require.NoError(t, err)
		assert.Equal(t, "/Apps/Docs", v)
		assert.NoDirExists(t, env.sys("home", "Docs"))
		assert.Equal(t, strings.Repeat("b", 24), readFile(t, env.sys("app-data", "Docs", "Sub", "b.txt")))

		snapshots := l.all()
		require.NotEmpty(t, snapshots)
		require.Len(t, snapshots[0], 1)
		assert.Equal(t, OperationMove, snapshots[0][0].Type)
		assert.Empty(t, snapshots[len(snapshots)-1])
	})

	t.Run("same-device move reports nothing", func(t *testing.T) {
		t.Parallel()
		env, l, cleanup := setup(t)
		defer cleanup()

		_, err := env.files.Move(ctx, "/Home/Docs/a.txt", "/Home", false)
		require.NoError(t, err)
		assert.Empty(t, l.all())
	})

	t.Run("failed copy is unregistered", func(t *testing.T) {
		t.Parallel()
		env, l, cleanup := setup(t)
		defer cleanup()
		env.files.forceCopyMove = true
		writeFile(t, env.sys("app-data", "Docs"), "taken")

		_, err := env.files.Move(ctx, "/Home/Docs", "/Apps", false)
		assert.Error(t, err)
		assert.Empty(t, env.files.OperationsInProgress())
		for _, snapshot := range l.all() {
			for _, op := range snapshot {
				assert.NotEqual(t, float64(100), op.Percent, "failures never report completion")
			}
		}
	})
}

func TestProgressTracker(t *testing.T) {
	t.Parallel()

	tracker := newProgressTracker(nil)
	op := tracker.start(OperationCopy, "/Home/a", "/Home/b", 200)
	other := tracker.start(OperationMove, "/Home/c", "/Apps/c", 0)

	op.add(50)
	tracker.mu.Lock()
	progress := op.progress
	tracker.mu.Unlock()
	assert.EqualValues(t, 50, progress.CopiedBytes)
	assert.Equal(t, float64(25), progress.Percent)

	snapshot := tracker.snapshotLocked()
	require.Len(t, snapshot, 2)
	assert.Equal(t, OperationCopy, snapshot[0].Type, "oldest first")

	op.finish(nil)
	snapshot = tracker.snapshotLocked()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "/Home/c", snapshot[0].Source)

	other.finish(nil)
	assert.Empty(t, tracker.snapshotLocked())
}
