package vfs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/util"
)

func TestSharedPools(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stat pool caps concurrent listings together", func(t *testing.T) {
		t.Parallel()
		pool := util.NewPool("stat", 2)
		withPool := func(o *Options) { o.StatPool = pool }
		first, cleanupFirst := testFiles(t, withPool)
		defer cleanupFirst()
		second, cleanupSecond := testFiles(t, withPool)
		defer cleanupSecond()

		const n = 40
		for _, env := range []*testEnv{first, second} {
			for i := 0; i < n; i++ {
				writeFile(t, env.sys("home", "Many", fmt.Sprintf("f%02d.txt", i)), "")
			}
		}

		var wg sync.WaitGroup
		for _, env := range []*testEnv{first, second, first, second} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				listing, err := env.files.ListDirectory(ctx, "/Home/Many")
				if assert.NoError(t, err) {
					assert.Len(t, listing.Items, n)
				}
			}()
		}
		wg.Wait()

		assert.Positive(t, pool.Peak())
		assert.LessOrEqual(t, pool.Peak(), 2)
		assert.Zero(t, pool.Active())
		assert.Same(t, pool, first.files.StatPool())
		assert.Same(t, pool, second.files.StatPool())
	})

	t.Run("delete pool serializes emptying the trash", func(t *testing.T) {
		t.Parallel()
		pool := util.NewPool("delete", 1)
		env, cleanup := testFiles(t, func(o *Options) { o.DeletePool = pool })
		defer cleanup()

		const n = 6
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("d%d", i)
			writeFile(t, env.sys("home", name, "a.txt"), name)
			_, err := env.files.Trash(ctx, "/Home/"+name, TrashOptions{})
			require.NoError(t, err)
		}

		result, err := env.files.EmptyTrash(ctx)
		require.NoError(t, err)
		assert.Equal(t, EmptyTrashResult{Deleted: n}, result)
		assert.Equal(t, 1, pool.Peak())

		names, err := readAllNames(env.sys("trash"))
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("cancelled context stops waiting for a slot", func(t *testing.T) {
		t.Parallel()
		pool := util.NewPool("delete", 1)
		env, cleanup := testFiles(t, func(o *Options) { o.DeletePool = pool })
		defer cleanup()
		writeFile(t, env.sys("home", "a.txt"), "")
		_, err := env.files.Trash(ctx, "/Home/a.txt", TrashOptions{})
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		result, err := env.files.EmptyTrash(cancelled)
		require.NoError(t, err)
		assert.Equal(t, EmptyTrashResult{Failed: 1}, result)
		assert.FileExists(t, env.sys("trash", "a.txt"))
	})
}
