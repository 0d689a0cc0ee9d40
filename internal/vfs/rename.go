package vfs

import (
	"os"
	"syscall"
)

// renameChecked is the racy fallback for platforms and filesystems without
// an exclusive rename: it refuses when newpath exists, then renames.
func renameChecked(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EEXIST}
	}
	return os.Rename(oldpath, newpath)
}
