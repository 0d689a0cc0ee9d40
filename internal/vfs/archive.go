package vfs

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// DefaultExtractCommand is the external extractor. It is invoked as
// "<cmd> -force-overwrite -no-directory -output-directory <dir> <archive>".
const DefaultExtractCommand = "unar"

// Archive zips entries that share one parent directory into that directory
// and returns the archive's virtual path.
func (f *Files) Archive(ctx context.Context, virtualPaths []string) (string, error) {
	if len(virtualPaths) == 0 {
		return "", common.Errorf(common.EINVAL, "Nothing to archive")
	}

	var sources []string
	parent := ""
	for _, p := range virtualPaths {
		v, systemPath, err := f.resolve(p)
		if err != nil {
			return "", err
		}
		if parent == "" {
			parent = filepath.Dir(systemPath)
		} else if filepath.Dir(systemPath) != parent {
			return "", common.Errorf(common.EINVAL, "All paths must be in the same directory")
		}
		stats := f.Stat(systemPath, v)
		if stats.Error != "" {
			return "", common.Errorf(common.ENOENT, "%s does not exist", v)
		}
		if f.registry.IsBaseDirectory(systemPath) || f.registry.IsTrash(systemPath) {
			return "", common.Errorf(common.ENOTSUP, "Cannot archive %s", v)
		}
		sources = append(sources, systemPath)
	}

	parentV, err := f.registry.SystemToVirtualPath(parent)
	if err != nil {
		return "", err
	}
	if !f.Stat(parent, parentV).AllowedOperations.Has(OpCreateWithin) {
		return "", common.Errorf(common.ENOTSUP, "Cannot create an archive in %s", parentV)
	}

	name := "Archive.zip"
	if len(sources) == 1 {
		name = filepath.Base(sources[0]) + ".zip"
	}
	target, err := UniqueName(filepath.Join(parent, name), SuffixSearchMaxIterations)
	if err != nil {
		return "", err
	}
	if err := f.writeZip(ctx, target, sources); err != nil {
		if rerr := os.Remove(target); rerr != nil && !os.IsNotExist(rerr) {
			log.Warnf("[Archive] failed to remove partial archive %s: %v", target, rerr)
		}
		return "", err
	}

	newV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return "", err
	}
	log.Debugf("[Archive] created %s from %d entries", newV, len(sources))
	return newV, nil
}

func (f *Files) writeZip(ctx context.Context, target string, sources []string) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return common.FromOS(err)
	}
	if err := f.fillZip(ctx, out, sources); err != nil {
		out.Close()
		return err
	}
	return common.FromOS(out.Close())
}

// fillZip writes sources, recursively, as a complete zip stream to w.
func (f *Files) fillZip(ctx context.Context, w io.Writer, sources []string) error {
	zw := zip.NewWriter(w)
	fsys := f.copier.fs
	for _, src := range sources {
		base := filepath.Dir(src)
		err := util.Walk(fsys, src, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rel, err := filepath.Rel(base, p)
			if err != nil {
				return err
			}
			return addZipEntry(zw, fsys, p, filepath.ToSlash(rel), info)
		})
		if err != nil {
			return common.FromOS(err)
		}
	}
	return zw.Close()
}

// addZipEntry writes one entry. Symlinks are stored with their target as
// content, the way zip tools expect.
func addZipEntry(zw *zip.Writer, fsys billy.Filesystem, p, name string, info os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
	} else {
		hdr.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		target, err := fsys.Readlink(p)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, target)
		return err
	case mode.IsRegular():
		in, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	}
	return nil
}

// Extract unpacks an archive into a new directory next to it and returns
// that directory's virtual path.
func (f *Files) Extract(ctx context.Context, virtualPath string) (string, error) {
	v, systemPath, err := f.resolve(virtualPath)
	if err != nil {
		return "", err
	}
	stats := f.Stat(systemPath, v)
	if stats.Error != "" {
		return "", common.Errorf(common.ENOENT, "%s does not exist", v)
	}
	if !stats.AllowedOperations.Has(OpExtract) {
		return "", common.Errorf(common.ENOTSUP, "Cannot extract %s", v)
	}

	stem, _ := SplitExtension(filepath.Base(systemPath))
	target, err := UniqueName(filepath.Join(filepath.Dir(systemPath), stem), SuffixSearchMaxIterations)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		return "", common.FromOS(err)
	}

	cmd := exec.CommandContext(ctx, f.extractCommand,
		"-force-overwrite", "-no-directory", "-output-directory", target, systemPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if rerr := f.copier.RemoveAll(target); rerr != nil {
			log.Warnf("[Archive] failed to clean up %s: %v", target, rerr)
		}
		return "", fmt.Errorf("failed to extract %s: %w: %s", v, err, strings.TrimSpace(string(output)))
	}

	newV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return "", err
	}
	log.Debugf("[Archive] extracted %s to %s", v, newV)
	return newV, nil
}
