package vfs

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"syscall"

	securejoin "github.com/cyphar/filepath-securejoin"
	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// VirtualToSystemPath maps a virtual path onto disk.
//
// The joined path is returned unresolved, but every symlink along it must
// stay inside the base directory.
func (r *Registry) VirtualToSystemPath(virtualPath string) (string, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return "", err
	}
	if v == "/" {
		return "", common.Errorf(common.ENOENT, "Cannot map path %s", v)
	}

	for _, dir := range r.dirs {
		rest, ok := common.Rebase(v, dir.VirtualName, "/")
		if !ok {
			continue
		}
		systemPath := filepath.Join(dir.SystemPath, filepath.FromSlash(rest))
		if err := checkContainment(systemPath, dir.SystemPath); err != nil {
			return "", err
		}
		return systemPath, nil
	}
	return "", common.Errorf(common.ENOENT, "Cannot map path %s", v)
}

// SystemToVirtualPath maps a system path back onto the longest matching
// base directory.
func (r *Registry) SystemToVirtualPath(systemPath string) (string, error) {
	s := filepath.Clean(systemPath)
	var best *BaseDirectory
	for i := range r.dirs {
		dir := &r.dirs[i]
		if !common.IsWithin(s, dir.SystemPath) {
			continue
		}
		if best == nil || len(dir.SystemPath) > len(best.SystemPath) {
			best = dir
		}
	}
	if best == nil {
		return "", common.Errorf(common.EINVAL, "Path %s is not inside a base directory", systemPath)
	}
	v, _ := common.Rebase(filepath.ToSlash(s), filepath.ToSlash(best.SystemPath), best.VirtualName)
	return v, nil
}

// IsBaseDirectory reports whether systemPath is exactly a registered base.
func (r *Registry) IsBaseDirectory(systemPath string) bool {
	_, ok := r.bySystem[filepath.Clean(systemPath)]
	return ok
}

// BaseDirectoryAt returns the base directory registered at systemPath.
func (r *Registry) BaseDirectoryAt(systemPath string) (BaseDirectory, bool) {
	dir, ok := r.bySystem[filepath.Clean(systemPath)]
	return dir, ok
}

// IsTrash reports whether systemPath is the trash root or inside it.
func (r *Registry) IsTrash(systemPath string) bool {
	return r.trash != nil && common.IsWithin(filepath.Clean(systemPath), r.trash.SystemPath)
}

// IsTrashRoot reports whether systemPath is the trash root itself.
func (r *Registry) IsTrashRoot(systemPath string) bool {
	return r.trash != nil && filepath.Clean(systemPath) == r.trash.SystemPath
}

// IsDirectChildOfTrash reports whether systemPath is a top-level trash entry.
func (r *Registry) IsDirectChildOfTrash(systemPath string) bool {
	if r.trash == nil {
		return false
	}
	s := filepath.Clean(systemPath)
	return s != r.trash.SystemPath && filepath.Dir(s) == r.trash.SystemPath
}

// checkContainment walks systemPath below base the way the kernel would,
// following every existing symlink, and rejects it when a link leads outside
// base. Missing components are taken literally, so paths that do not exist
// yet are checked up to their deepest existing ancestor. Paths under a base
// that does not exist yet are accepted as-is.
func checkContainment(systemPath, base string) error {
	if _, err := os.Lstat(base); err != nil {
		return nil
	}
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return nil
	}
	rel, err := filepath.Rel(base, systemPath)
	if err != nil {
		return common.Wrap(common.EINVAL, err, "Path %s is not inside %s", systemPath, base)
	}

	_, err = securejoin.SecureJoinVFS(realBase, rel, containedVFS{base: base, realBase: realBase})
	switch {
	case err == nil:
		return nil
	case common.HasCode(err, common.EPERM):
		log.Debugf("[Translate] %s: %v", systemPath, err)
		return common.Wrap(common.EPERM, err, "Path %s escapes base directory", systemPath)
	case errors.Is(err, syscall.ELOOP):
		return common.Wrap(common.EINVAL, err, "too many levels of symbolic links at %s", systemPath)
	}
	return common.FromOS(err)
}

// containedVFS feeds securejoin the host filesystem, rewriting each symlink
// target relative to the base root. Targets outside the base fail with EPERM
// instead of being clamped into it.
type containedVFS struct {
	base, realBase string
}

func (c containedVFS) Lstat(name string) (os.FileInfo, error) { return os.Lstat(name) }

func (c containedVFS) Readlink(name string) (string, error) {
	dest, err := os.Readlink(name)
	if err != nil {
		return "", err
	}
	target := dest
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(filepath.Clean(name)), target)
	}
	target = filepath.Clean(target)

	candidates := []string{target}
	if real, err := filepath.EvalSymlinks(target); err == nil && real != target {
		candidates = append(candidates, real)
	}
	for _, candidate := range candidates {
		for _, root := range []string{c.realBase, c.base} {
			if common.IsWithin(candidate, root) {
				rel, _ := filepath.Rel(root, candidate)
				return string(filepath.Separator) + rel, nil
			}
		}
	}
	return "", common.Errorf(common.EPERM, "symlink %s points to %s outside the base directory", name, dest)
}

// virtualName returns the name callers see for a system path: the base
// directory name for a base, otherwise the basename.
func (r *Registry) virtualName(systemPath string) string {
	if dir, ok := r.BaseDirectoryAt(systemPath); ok {
		return dir.Name()
	}
	return path.Base(filepath.ToSlash(systemPath))
}
