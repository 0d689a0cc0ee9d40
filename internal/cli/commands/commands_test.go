package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/config"
	"homefs/internal/storage"
	"homefs/internal/vfs"
)

// runCLI executes the root command with args in the current process.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	jsonOutput, overwriteFlag, keepOriginalFlag, restoreOverwriteFlag, progressFlag = false, false, false, false, false
	preferencesUpdate = vfs.ViewPreferences{}
	rootCmd.SetArgs(args)
	return Execute(context.Background())
}

func TestFormatEntry(t *testing.T) {
	t.Parallel()

	size := int64(1536)
	modified := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)

	file := formatEntry(vfs.Stats{Name: "a.txt", Size: &size, Modified: &modified})
	assert.True(t, strings.HasPrefix(file, "- "), file)
	assert.Contains(t, file, "1.5 kB")
	assert.Contains(t, file, "2024-03-01 12:30")
	assert.True(t, strings.HasSuffix(file, "  a.txt"), file)

	dir := formatEntry(vfs.Stats{Name: "Docs", Type: vfs.TypeDirectory, Size: &size})
	assert.True(t, strings.HasPrefix(dir, "d "), dir)
	assert.NotContains(t, dir, "kB", "directory sizes are not shown")
	assert.True(t, strings.HasSuffix(dir, "Docs/"), dir)

	broken := formatEntry(vfs.Stats{Name: "x", Error: "EPERM: nope"})
	assert.True(t, strings.HasPrefix(broken, "? "), broken)
}

func TestFormatStats(t *testing.T) {
	t.Parallel()

	size := int64(10)
	lines := formatStats(vfs.Stats{
		Name:              "a.txt",
		Path:              "/Home/a.txt",
		Size:              &size,
		AllowedOperations: vfs.NewOperations(vfs.OpCopy, vfs.OpTrash),
	})
	assert.Equal(t, []string{
		"Path: /Home/a.txt",
		"Name: a.txt",
		"Size: 10 B (10 bytes)",
		"Operations: copy, trash",
	}, lines)
}

func TestFormatProgress(t *testing.T) {
	t.Parallel()

	left := 4.2
	line := formatProgress(vfs.OperationProgress{
		Type:             vfs.OperationCopy,
		Source:           "/Home/a",
		Destination:      "/Apps/a",
		Percent:          42,
		BytesPerSecond:   3_100_000,
		SecondsRemaining: &left,
	})
	assert.Equal(t, "copy /Home/a -> /Apps/a  42% 3.1 MB/s 4s left", line)

	done := formatProgress(vfs.OperationProgress{Type: vfs.OperationMove, Source: "/Home/b", Destination: "/Apps/b", Percent: 100, SecondsRemaining: &left})
	assert.NotContains(t, done, "left")
}

func TestNormalizeLogLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"debug": "debug", "warn": "warn", "none": "off", "": "off", "off": "off"} {
		got, err := normalizeLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := normalizeLogLevel("loud")
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv(config.EnvConfigDir, configDir)
	data := filepath.Join(configDir, "data")
	sys := func(parts ...string) string { return filepath.Join(append([]string{data}, parts...)...) }

	// Stdout is not inspected here; discard it to keep test output readable.
	devNull, err := os.Open(os.DevNull)
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = devNull
	t.Cleanup(func() {
		os.Stdout = stdout
		devNull.Close()
	})

	t.Run("init", func(t *testing.T) {
		require.NoError(t, runCLI(t, "init"))
		assert.FileExists(t, config.SettingsPath())
		assert.FileExists(t, config.MetaFilePath())
		for _, name := range []string{"home", "trash", "app-data", "external"} {
			assert.DirExists(t, sys(name))
		}
		assert.DirExists(t, sys("home", "Documents"), "default favorite")
	})

	t.Run("mkdir cp mv rename", func(t *testing.T) {
		require.NoError(t, runCLI(t, "mkdir", "/Home/Projects"))
		require.NoError(t, os.WriteFile(sys("home", "notes.txt"), []byte("hi"), 0o644))

		require.NoError(t, runCLI(t, "cp", "/Home/notes.txt", "/Home/Projects"))
		assert.FileExists(t, sys("home", "Projects", "notes.txt"))
		require.NoError(t, runCLI(t, "cp", "/Home/notes.txt", "/Home/Projects"))
		assert.FileExists(t, sys("home", "Projects", "notes (2).txt"))

		require.NoError(t, runCLI(t, "rename", "/Home/Projects/notes (2).txt", "todo.txt"))
		assert.FileExists(t, sys("home", "Projects", "todo.txt"))

		require.NoError(t, runCLI(t, "mv", "/Home/Projects/todo.txt", "/Home/Documents"))
		assert.FileExists(t, sys("home", "Documents", "todo.txt"))
	})

	t.Run("copy with progress", func(t *testing.T) {
		require.NoError(t, runCLI(t, "cp", "--progress", "/Home/notes.txt", "/Home/Documents"))
		assert.FileExists(t, sys("home", "Documents", "notes.txt"))
	})

	t.Run("view preferences", func(t *testing.T) {
		require.NoError(t, runCLI(t, "preferences"))
		require.NoError(t, runCLI(t, "preferences", "--view", "icons"))
		require.NoError(t, runCLI(t, "preferences", "--sort-order", "descending"))
		assert.Error(t, runCLI(t, "preferences", "--sort-by", "color"))

		meta, err := storage.OpenMeta(config.MetaFilePath())
		require.NoError(t, err)
		defer meta.Close()
		files, err := vfs.New(meta, vfs.OptionsFromSettings(config.DefaultSettings()))
		require.NoError(t, err)
		prefs, err := files.ViewPreferences(context.Background())
		require.NoError(t, err)
		assert.Equal(t, vfs.ViewPreferences{View: "icons", SortBy: "name", SortOrder: "descending"}, prefs)
	})

	t.Run("shares follow rename", func(t *testing.T) {
		require.NoError(t, runCLI(t, "shares", "add", "/Home/Projects"))
		require.NoError(t, runCLI(t, "rename", "/Home/Projects", "Work"))

		meta, err := storage.OpenMeta(config.MetaFilePath())
		require.NoError(t, err)
		defer meta.Close()
		shares, err := meta.Shares(context.Background())
		require.NoError(t, err)
		require.Len(t, shares, 1)
		assert.Equal(t, "/Home/Work", shares[0].Path)

		conf, err := os.ReadFile(filepath.Join(configDir, "smb-shares.conf"))
		require.NoError(t, err)
		assert.Contains(t, string(conf), "path = "+sys("home", "Work"))
	})

	t.Run("trash and restore", func(t *testing.T) {
		require.NoError(t, runCLI(t, "trash", "/Home/notes.txt"))
		assert.NoFileExists(t, sys("home", "notes.txt"))
		assert.FileExists(t, sys("trash", "notes.txt"))

		require.NoError(t, runCLI(t, "restore", "/Trash/notes.txt"))
		assert.FileExists(t, sys("home", "notes.txt"))
	})

	t.Run("protected paths are refused", func(t *testing.T) {
		err := runCLI(t, "rm", "/Home/Downloads")
		assert.ErrorContains(t, err, "ENOTSUP")
		assert.DirExists(t, sys("home", "Downloads"))
	})

	t.Run("favorites", func(t *testing.T) {
		require.NoError(t, runCLI(t, "favorites", "add", "/Home/Work"))
		require.NoError(t, runCLI(t, "favorites", "rm", "/Home/Documents"))

		meta, err := storage.OpenMeta(config.MetaFilePath())
		require.NoError(t, err)
		defer meta.Close()
		favorites, err := meta.Favorites(context.Background())
		require.NoError(t, err)
		assert.Contains(t, favorites, "/Home/Work")
		assert.NotContains(t, favorites, "/Home/Documents")
	})

	t.Run("empty trash and maintain without daemon", func(t *testing.T) {
		require.NoError(t, runCLI(t, "trash", "/Home/notes.txt"))
		require.NoError(t, runCLI(t, "empty-trash"))
		entries, err := os.ReadDir(sys("trash"))
		require.NoError(t, err)
		assert.Empty(t, entries)

		require.NoError(t, runCLI(t, "audit-trash"))
		require.NoError(t, runCLI(t, "daemon", "maintain"))
	})

	t.Run("settings", func(t *testing.T) {
		require.NoError(t, runCLI(t, "settings", "--maintenance-interval", "60"))
		loaded, err := config.LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, time.Minute, loaded.MaintenancePeriod())

		assert.Error(t, runCLI(t, "settings", "--logging", "loud"))
	})

	t.Run("usage errors", func(t *testing.T) {
		assert.Error(t, runCLI(t, "cp", "/Home/notes.txt"))
		assert.Error(t, runCLI(t, "stat", "/Nowhere"))
	})
}
