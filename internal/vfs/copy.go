// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// hostFS is the host filesystem seen through billy, rooted at "/" so system
// paths can be used unchanged. The chroot flavour is used because it never
// resolves the final component of a path.
func hostFS() billy.Filesystem {
	return osfs.New("/", osfs.WithChrootOS())
}

// copier copies trees within one billy filesystem, preserving symlinks and
// permission bits.
type copier struct {
	fs billy.Filesystem
}

func newCopier(fs billy.Filesystem) *copier {
	return &copier{fs: fs}
}

// Copy copies src to dst recursively. dst must not exist.
func (c *copier) Copy(src, dst string) error {
	return c.CopyWithProgress(src, dst, nil)
}

// CopyWithProgress is Copy, calling copied with the byte count of every
// write of regular file content. copied may be nil.
func (c *copier) CopyWithProgress(src, dst string, copied func(n int64)) error {
	if _, err := c.fs.Lstat(dst); err == nil {
		return common.Errorf(common.EEXIST, "%s already exists", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return common.FromOS(err)
	}

	info, err := c.fs.Lstat(src)
	if err != nil {
		return common.FromOS(err)
	}
	return c.copyEntry(src, dst, info, copied)
}

// Size sums the sizes of the regular files at or beneath p.
func (c *copier) Size(p string) (int64, error) {
	var total int64
	err := util.Walk(c.fs, p, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, common.FromOS(err)
}

func (c *copier) copyEntry(src, dst string, info fs.FileInfo, copied func(int64)) error {
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := c.fs.Readlink(src)
		if err != nil {
			return common.FromOS(err)
		}
		return common.FromOS(c.fs.Symlink(target, dst))
	case mode.IsDir():
		return c.copyDir(src, dst, mode.Perm(), copied)
	case mode.IsRegular():
		return c.copyFile(src, dst, mode.Perm(), copied)
	}
	return common.Errorf(common.ENOTSUP, "Cannot copy special file %s", src)
}

func (c *copier) copyDir(src, dst string, perm fs.FileMode, copied func(int64)) error {
	if err := c.fs.MkdirAll(dst, perm|0o700); err != nil {
		return common.FromOS(err)
	}
	entries, err := c.fs.ReadDir(src)
	if err != nil {
		return common.FromOS(err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if err := c.copyEntry(c.fs.Join(src, name), c.fs.Join(dst, name), entry, copied); err != nil {
			return err
		}
	}
	return c.chmod(dst, perm)
}

func (c *copier) copyFile(src, dst string, perm fs.FileMode, copied func(int64)) error {
	in, err := c.fs.Open(src)
	if err != nil {
		return common.FromOS(err)
	}
	defer in.Close()

	out, err := c.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return common.FromOS(err)
	}
	var w io.Writer = out
	if copied != nil {
		w = &countingWriter{w: out, copied: copied}
	}
	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		return common.FromOS(err)
	}
	if err := out.Close(); err != nil {
		return common.FromOS(err)
	}
	return c.chmod(dst, perm)
}

type countingWriter struct {
	w      io.Writer
	copied func(int64)
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.copied(int64(n))
	}
	return n, err
}

// chmod restores exact permission bits after umask, when the filesystem
// supports it.
func (c *copier) chmod(p string, perm fs.FileMode) error {
	change, ok := c.fs.(billy.Change)
	if !ok {
		return nil
	}
	if err := change.Chmod(p, perm); err != nil {
		log.Debugf("[Copy] chmod %s: %v", p, err)
	}
	return nil
}

// RemoveAll removes p and everything beneath it. Missing paths are not an
// error. A symlink is removed itself, never its target.
func (c *copier) RemoveAll(p string) error {
	info, err := c.fs.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return common.FromOS(err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return common.FromOS(c.fs.Remove(p))
	}
	return common.FromOS(util.RemoveAll(c.fs, p))
}
