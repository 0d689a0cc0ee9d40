package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/common"
)

func TestSplitExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, stem, ext string
	}{
		{"file.txt", "file", ".txt"},
		{"archive.tar.gz", "archive", ".tar.gz"},
		{"backup.TAR.XZ", "backup", ".TAR.XZ"},
		{"photo", "photo", ""},
		{".bashrc", ".bashrc", ""},
		{"my.report.pdf", "my.report", ".pdf"},
		{".tar.gz", ".tar", ".gz"},
	}
	for _, tt := range tests {
		stem, ext := SplitExtension(tt.name)
		assert.Equal(t, tt.stem, stem, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
	}
}

func touch(t *testing.T, p string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, nil, 0o644))
}

func TestUniqueName(t *testing.T) {
	t.Parallel()

	t.Run("free name is kept", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), "file.txt")
		got, err := UniqueName(p, SuffixSearchMaxIterations)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("suffix goes before extension", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "file.txt"))
		touch(t, filepath.Join(dir, "file (2).txt"))

		got, err := UniqueName(filepath.Join(dir, "file.txt"), SuffixSearchMaxIterations)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "file (3).txt"), got)
	})

	t.Run("tar double extension stays whole", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "data.tar.gz"))

		got, err := UniqueName(filepath.Join(dir, "data.tar.gz"), SuffixSearchMaxIterations)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "data (2).tar.gz"), got)
	})

	t.Run("directories keep dots", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "Photos.2024"), 0o755))

		got, err := UniqueName(filepath.Join(dir, "Photos.2024"), SuffixSearchMaxIterations)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "Photos.2024 (2)"), got)
	})

	t.Run("dangling symlink counts as taken", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "link")))

		got, err := UniqueName(filepath.Join(dir, "link"), SuffixSearchMaxIterations)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "link (2)"), got)
	})

	t.Run("gives up at the cap", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "file.txt"))
		for i := 2; i <= SuffixSearchMaxIterations; i++ {
			touch(t, filepath.Join(dir, fmt.Sprintf("file (%d).txt", i)))
		}

		_, err := UniqueName(filepath.Join(dir, "file.txt"), SuffixSearchMaxIterations)
		require.Error(t, err)
		assert.True(t, common.HasCode(err, common.EEXIST))
		assert.Contains(t, err.Error(), "EEXIST: Gave up searching for a suffix")

		// A larger cap finds the next free slot
		got, err := UniqueName(filepath.Join(dir, "file.txt"), TrashSuffixSearchMaxIterations)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("file (%d).txt", SuffixSearchMaxIterations+1)), got)
	})

	t.Run("custom taken predicate", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		reserved := map[string]bool{
			filepath.Join(dir, "a.txt"):     true,
			filepath.Join(dir, "a (2).txt"): true,
		}
		got, err := uniqueName(filepath.Join(dir, "a.txt"), 10, func(p string) (bool, error) {
			return reserved[p], nil
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "a (3).txt"), got)
	})
}
