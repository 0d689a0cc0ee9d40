package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"homefs/internal/common"
)

const (
	// SuffixSearchMaxIterations caps the "name (N)" search for copies,
	// restores, archives and share names.
	SuffixSearchMaxIterations = 100
	// TrashSuffixSearchMaxIterations caps the search inside the trash, where
	// the same name is trashed far more often.
	TrashSuffixSearchMaxIterations = 1000
)

// SplitExtension splits a file name into its stem and extension, keeping
// ".tar.*" double extensions together. Dot files have no extension.
func SplitExtension(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	if stem == "" {
		return name, ""
	}
	if inner := filepath.Ext(stem); strings.EqualFold(inner, ".tar") && inner != stem {
		stem = strings.TrimSuffix(stem, inner)
		ext = inner + ext
	}
	return stem, ext
}

// UniqueName returns systemPath if nothing exists there, otherwise the first
// free "name (N)" variant for N in 2..maxIterations.
func UniqueName(systemPath string, maxIterations int) (string, error) {
	return uniqueName(systemPath, maxIterations, pathExists)
}

// uniqueName checks candidates through taken, which reports whether a name
// is already in use.
func uniqueName(systemPath string, maxIterations int, taken func(string) (bool, error)) (string, error) {
	used, err := taken(systemPath)
	if err != nil {
		return "", err
	}
	if !used {
		return systemPath, nil
	}

	dir, name := filepath.Split(systemPath)
	stem, ext := name, ""
	// Directories keep dots in their names intact
	if info, err := os.Lstat(systemPath); err != nil || !info.IsDir() {
		stem, ext = SplitExtension(name)
	}

	for i := 2; i <= maxIterations; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
	return "", common.Errorf(common.EEXIST, "Gave up searching for a suffix for %s", name)
}

// pathExists reports whether anything, including a dangling symlink,
// exists at p.
func pathExists(p string) (bool, error) {
	_, err := os.Lstat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, common.FromOS(err)
}
