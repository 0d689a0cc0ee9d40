package vfs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/common"
	"homefs/internal/storage"
)

// testEnv is a Files instance over a temp data directory.
type testEnv struct {
	files     *Files
	meta      *storage.MetaFile
	dataDir   string
	shareConf string

	mu      sync.Mutex
	reloads []int
}

func (e *testEnv) sys(parts ...string) string {
	return filepath.Join(append([]string{e.dataDir}, parts...)...)
}

func (e *testEnv) reloadCounts() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.reloads...)
}

// testFiles creates and starts a Files instance. opts may adjust Options
// before New is called.
func testFiles(t *testing.T, opts ...func(*Options)) (*testEnv, func()) {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		dataDir:   filepath.Join(root, "data"),
		shareConf: filepath.Join(root, "samba", "shares.conf"),
	}

	meta, err := storage.CreateMeta(filepath.Join(root, "meta.db"))
	require.NoError(t, err)
	env.meta = meta

	o := Options{
		DataDirectory:    env.dataDir,
		DefaultFavorites: []string{},
		ShareConfig: NewSambaConfig(env.shareConf, "", func(ctx context.Context, shares int) error {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.reloads = append(env.reloads, shares)
			return nil
		}),
	}
	for _, fn := range opts {
		fn(&o)
	}

	env.files, err = New(meta, o)
	require.NoError(t, err)
	require.NoError(t, env.files.Start(context.Background()))

	return env, func() {
		meta.Close()
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires a data directory", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil, Options{})
		assert.True(t, common.HasCode(err, common.EINVAL), "got %v", err)
	})

	t.Run("rejects bad protected patterns", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil, Options{DataDirectory: t.TempDir(), ProtectedPaths: []string{"/Home/[x"}})
		assert.True(t, common.HasCode(err, common.EINVAL), "got %v", err)
	})

	t.Run("explicit base directories", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		f, err := New(nil, Options{BaseDirectories: []BaseDirectory{
			{SystemPath: filepath.Join(dir, "h"), VirtualName: "/Home"},
		}})
		require.NoError(t, err)
		assert.Len(t, f.Registry().All(), 1)
		_, ok := f.Registry().TrashDirectory()
		assert.False(t, ok)
	})
}

func TestStartCreatesBaseDirectories(t *testing.T) {
	t.Parallel()
	env, cleanup := testFiles(t)
	defer cleanup()

	for _, name := range []string{"home", "trash", "app-data", "external"} {
		assert.DirExists(t, env.sys(name))
	}
	assert.FileExists(t, env.shareConf)
	assert.Equal(t, []int{0}, env.reloadCounts())
}

func TestDefaultFavorites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	defaults := []string{"/Home/Documents", "/Home/Downloads", "/Home/Photos"}
	env, cleanup := testFiles(t, func(o *Options) { o.DefaultFavorites = defaults })
	defer cleanup()

	favorites, err := env.files.Favorites().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, favorites)
	for _, name := range []string{"Documents", "Downloads", "Photos"} {
		assert.DirExists(t, env.sys("home", name))
	}

	t.Run("only on first run", func(t *testing.T) {
		require.NoError(t, os.Remove(env.sys("home", "Photos")))

		again, err := New(env.meta, Options{DataDirectory: env.dataDir, DefaultFavorites: defaults})
		require.NoError(t, err)
		require.NoError(t, again.Start(ctx))

		assert.NoDirExists(t, env.sys("home", "Photos"))
		favorites, err := again.Favorites().List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/Home/Documents", "/Home/Downloads"}, favorites)

		stored, err := env.meta.Favorites(ctx)
		require.NoError(t, err)
		assert.Len(t, stored, 3, "missing favorites stay stored")
	})
}

func TestStatPath(t *testing.T) {
	t.Parallel()
	env, cleanup := testFiles(t)
	defer cleanup()

	writeFile(t, env.sys("home", "notes.txt"), "hello")
	require.NoError(t, os.Symlink("notes.txt", env.sys("home", "link")))

	t.Run("regular file", func(t *testing.T) {
		t.Parallel()
		stats, err := env.files.StatPath("/Home/notes.txt")
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", stats.Name)
		assert.Equal(t, "/Home/notes.txt", stats.Path)
		assert.Equal(t, "text/plain", stats.Type)
		require.NotNil(t, stats.Size)
		assert.EqualValues(t, 5, *stats.Size)
		assert.NotNil(t, stats.Modified)
		assert.Empty(t, stats.Error)
		assert.True(t, stats.AllowedOperations.Has(OpRename))
	})

	t.Run("symlink is not followed", func(t *testing.T) {
		t.Parallel()
		stats, err := env.files.StatPath("/Home/link")
		require.NoError(t, err)
		assert.Equal(t, TypeSymbolicLink, stats.Type)
	})

	t.Run("base directory uses its virtual name", func(t *testing.T) {
		t.Parallel()
		stats, err := env.files.StatPath("/Apps")
		require.NoError(t, err)
		assert.Equal(t, "Apps", stats.Name)
		assert.True(t, stats.IsDirectory())
	})

	t.Run("missing entry never fails", func(t *testing.T) {
		t.Parallel()
		stats, err := env.files.StatPath("/Home/gone.zip")
		require.NoError(t, err)
		assert.Equal(t, "ENOENT", stats.Error)
		assert.Nil(t, stats.Size)
		assert.Empty(t, stats.Type)
		assert.Equal(t,
			NewOperations(OpRename, OpCopy, OpMove, OpDelete, OpTrash, OpExtract).Names(),
			stats.AllowedOperations.Names())
	})

	t.Run("root", func(t *testing.T) {
		t.Parallel()
		stats, err := env.files.StatPath("/")
		require.NoError(t, err)
		assert.Equal(t, "/", stats.Path)
		assert.True(t, stats.AllowedOperations.IsEmpty())

		ops, err := env.files.SupportedOperations("/")
		require.NoError(t, err)
		assert.True(t, ops.IsEmpty())
	})

	t.Run("invalid paths", func(t *testing.T) {
		t.Parallel()
		_, err := env.files.StatPath("Home")
		assert.True(t, common.HasCode(err, common.EINVAL))
		_, err = env.files.StatPath("/Nope/x")
		assert.True(t, common.HasCode(err, common.ENOENT))
	})
}

func TestMimeType(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]string{
		"photo.JPG":   "image/jpeg",
		"page.html":   "text/html",
		"notes.txt":   "text/plain",
		"data.qqqzzz": DefaultMimeType,
		"README":      DefaultMimeType,
	} {
		assert.Equal(t, want, MimeType(name), name)
	}
}

func TestCreateDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, cleanup := testFiles(t)
	defer cleanup()
	writeFile(t, env.sys("home", "file.txt"), "")

	v, err := env.files.CreateDirectory(ctx, "/Home/New Folder")
	require.NoError(t, err)
	assert.Equal(t, "/Home/New Folder", v)
	assert.DirExists(t, env.sys("home", "New Folder"))

	_, err = env.files.CreateDirectory(ctx, "/Home/New Folder")
	assert.NoError(t, err, "existing directory is not an error")

	tests := []struct {
		path string
		code error
	}{
		{"/", common.ENOTSUP},
		{"/Trash/x", common.ENOTSUP},
		{"/Home/missing/x", common.ENOENT},
		{"/Home/file.txt/x", common.ENOTDIR},
		{"/Home/file.txt", common.EEXIST},
		{"/Home/a:b", common.EINVAL},
	}
	for _, tt := range tests {
		_, err := env.files.CreateDirectory(ctx, tt.path)
		assert.ErrorIs(t, err, tt.code, tt.path)
	}
}

func TestListDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("root lists base directories", func(t *testing.T) {
		t.Parallel()
		env, cleanup := testFiles(t)
		defer cleanup()

		listing, err := env.files.ListDirectory(ctx, "/")
		require.NoError(t, err)
		var paths []string
		for _, item := range listing.Items {
			paths = append(paths, item.Path)
			assert.True(t, item.IsDirectory())
		}
		assert.Equal(t, []string{"/Home", "/Trash", "/Apps", "/External"}, paths)
	})

	t.Run("sorted and hidden files filtered", func(t *testing.T) {
		t.Parallel()
		env, cleanup := testFiles(t)
		defer cleanup()
		for _, name := range []string{"b.txt", "a.txt", ".DS_Store", "movie.mkv.homefs-upload"} {
			writeFile(t, env.sys("home", name), "")
		}
		require.NoError(t, os.Mkdir(env.sys("home", "c"), 0o755))

		listing, err := env.files.ListDirectory(ctx, "/Home")
		require.NoError(t, err)
		var names []string
		for _, item := range listing.Items {
			names = append(names, item.Name)
		}
		assert.Equal(t, []string{"a.txt", "b.txt", "c"}, names)
		assert.Equal(t, "/Home", listing.Stats.Path)
		assert.Nil(t, listing.TruncatedAt)
	})

	t.Run("truncates at the limit", func(t *testing.T) {
		t.Parallel()
		env, cleanup := testFiles(t, func(o *Options) { o.MaxDirectoryListing = 5 })
		defer cleanup()
		for i := 0; i < 8; i++ {
			writeFile(t, env.sys("home", string(rune('a'+i))), "")
		}

		listing, err := env.files.ListDirectory(ctx, "/Home")
		require.NoError(t, err)
		assert.Len(t, listing.Items, 5)
		require.NotNil(t, listing.TruncatedAt)
		assert.Equal(t, 5, *listing.TruncatedAt)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		env, cleanup := testFiles(t)
		defer cleanup()
		writeFile(t, env.sys("home", "file.txt"), "")

		_, err := env.files.ListDirectory(ctx, "/Home/file.txt")
		assert.ErrorIs(t, err, common.ENOTDIR)
		_, err = env.files.ListDirectory(ctx, "/Home/missing")
		assert.ErrorIs(t, err, common.ENOENT)
	})
}
