//go:build !linux && !darwin

package vfs

func renameNoReplace(oldpath, newpath string) error {
	return renameChecked(oldpath, newpath)
}
