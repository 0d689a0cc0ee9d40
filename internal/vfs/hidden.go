package vfs

import (
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultHiddenFiles are left out of directory listings.
var DefaultHiddenFiles = []string{".DS_Store", ".directory", "*.homefs-upload"}

// hiddenFilter matches entry names against gitignore-style patterns.
type hiddenFilter struct {
	ignore *ignore.GitIgnore
}

func newHiddenFilter(patterns []string) *hiddenFilter {
	if len(patterns) == 0 {
		return &hiddenFilter{}
	}
	return &hiddenFilter{ignore: ignore.CompileIgnoreLines(patterns...)}
}

// Hidden reports whether a directory entry named name should be skipped.
func (h *hiddenFilter) Hidden(name string) bool {
	if h == nil || h.ignore == nil {
		return false
	}
	return h.ignore.MatchesPath(name)
}
