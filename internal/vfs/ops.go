package vfs

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// resolve validates a virtual path and maps it onto disk.
func (f *Files) resolve(virtualPath string) (v, systemPath string, err error) {
	v, err = common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return "", "", err
	}
	systemPath, err = f.registry.VirtualToSystemPath(v)
	if err != nil {
		return "", "", err
	}
	return v, systemPath, nil
}

// resolveExistingDir resolves a destination directory that must exist.
func (f *Files) resolveExistingDir(virtualPath string) (v, systemPath string, err error) {
	v, systemPath, err = f.resolve(virtualPath)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(systemPath)
	if err != nil {
		return "", "", common.FromOS(err)
	}
	if !info.IsDir() {
		return "", "", common.Errorf(common.ENOTDIR, "%s is not a directory", v)
	}
	return v, systemPath, nil
}

func mustExist(systemPath, v string) error {
	if _, err := os.Lstat(systemPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return common.Errorf(common.ENOENT, "%s does not exist", v)
		}
		return common.FromOS(err)
	}
	return nil
}

// CreateDirectory creates v. An existing directory is not an error.
func (f *Files) CreateDirectory(ctx context.Context, virtualPath string) (string, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return "", err
	}
	name := common.BaseName(v)
	if name == "" {
		return "", common.Errorf(common.ENOTSUP, "Cannot create the root directory")
	}
	if _, err := common.ValidateFilename(name); err != nil {
		return "", err
	}

	parent := common.ParentPath(v)
	parentOps, err := f.SupportedOperations(parent)
	if err != nil {
		return "", err
	}
	if !parentOps.Has(OpCreateWithin) {
		if _, _, serr := f.resolveExistingDir(parent); serr != nil {
			return "", serr
		}
		return "", common.Errorf(common.ENOTSUP, "Cannot create directories in %s", parent)
	}

	systemPath, err := f.registry.VirtualToSystemPath(v)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(systemPath, 0o755); err != nil {
		if info, serr := os.Stat(systemPath); serr == nil && info.IsDir() {
			return v, nil
		}
		return "", common.FromOS(err)
	}
	log.Debugf("[Files] created directory %s", v)
	return v, nil
}

// Copy copies src into destDir and returns the new virtual path. Copying
// into the trash root trashes a copy of src.
func (f *Files) Copy(ctx context.Context, src, destDir string, overwrite bool) (string, error) {
	v, srcPath, err := f.resolve(src)
	if err != nil {
		return "", err
	}
	if f.registry.IsBaseDirectory(srcPath) {
		return "", common.Errorf(common.ENOTSUP, "Cannot copy base directory %s", v)
	}
	if err := mustExist(srcPath, v); err != nil {
		return "", err
	}

	destV, destPath, err := f.resolveExistingDir(destDir)
	if err != nil {
		return "", err
	}
	if f.registry.IsTrashRoot(destPath) {
		return f.Trash(ctx, v, TrashOptions{KeepOriginal: true})
	}
	if !f.Stat(destPath, destV).AllowedOperations.Has(OpCopyTo) {
		return "", common.Errorf(common.ENOTSUP, "Cannot copy into %s", destV)
	}

	target := filepath.Join(destPath, filepath.Base(srcPath))
	if common.IsStrictlyWithin(target, srcPath) {
		return "", common.Errorf(common.EINVAL, "Cannot copy %s into itself", v)
	}

	// Copying next to the source always keeps both
	if !overwrite || target == srcPath {
		if target, err = UniqueName(target, SuffixSearchMaxIterations); err != nil {
			return "", err
		}
	} else if err := f.clearTarget(srcPath, target); err != nil {
		return "", err
	}

	if err := f.copyTracked(OperationCopy, srcPath, target); err != nil {
		if !common.HasCode(err, common.EEXIST) {
			if rerr := f.copier.RemoveAll(target); rerr != nil {
				log.Warnf("[Files] failed to clean up partial copy %s: %v", target, rerr)
			}
		}
		return "", err
	}

	newV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return "", err
	}
	log.Debugf("[Files] copied %s to %s", v, newV)
	return newV, nil
}

// Move moves src into destDir and returns the new virtual path. Moving into
// the trash root trashes src.
func (f *Files) Move(ctx context.Context, src, destDir string, overwrite bool) (string, error) {
	v, srcPath, err := f.resolve(src)
	if err != nil {
		return "", err
	}
	if f.registry.IsBaseDirectory(srcPath) || f.policy.IsProtected(v) {
		return "", common.Errorf(common.ENOTSUP, "Cannot move %s", v)
	}
	if err := mustExist(srcPath, v); err != nil {
		return "", err
	}

	destV, destPath, err := f.resolveExistingDir(destDir)
	if err != nil {
		return "", err
	}
	if f.registry.IsTrashRoot(destPath) {
		return f.Trash(ctx, v, TrashOptions{})
	}
	if destPath == filepath.Dir(srcPath) {
		return v, nil
	}
	if !f.Stat(destPath, destV).AllowedOperations.Has(OpMoveTo) {
		return "", common.Errorf(common.ENOTSUP, "Cannot move into %s", destV)
	}

	target := filepath.Join(destPath, filepath.Base(srcPath))
	if common.IsStrictlyWithin(target, srcPath) {
		return "", common.Errorf(common.EINVAL, "Cannot move %s into itself", v)
	}
	return f.relocate(ctx, v, srcPath, target, overwrite)
}

// Rename renames src within its parent and returns the new virtual path.
func (f *Files) Rename(ctx context.Context, src, newName string, overwrite bool) (string, error) {
	v, srcPath, err := f.resolve(src)
	if err != nil {
		return "", err
	}
	if f.registry.IsBaseDirectory(srcPath) || f.registry.IsTrash(srcPath) || f.policy.IsProtected(v) {
		return "", common.Errorf(common.ENOTSUP, "Cannot rename %s", v)
	}
	name, err := common.ValidateFilename(newName)
	if err != nil {
		return "", err
	}
	if err := mustExist(srcPath, v); err != nil {
		return "", err
	}
	if name == filepath.Base(srcPath) {
		return v, nil
	}

	target := filepath.Join(filepath.Dir(srcPath), name)
	if f.policy.IsProtected(path.Join(common.ParentPath(v), name)) {
		return "", common.Errorf(common.ENOTSUP, "Cannot rename %s onto a protected path", v)
	}
	return f.relocate(ctx, v, srcPath, target, overwrite)
}

// relocate moves srcPath to target and repairs metadata that referenced v.
func (f *Files) relocate(ctx context.Context, v, srcPath, target string, overwrite bool) (string, error) {
	if overwrite {
		if err := f.clearTarget(srcPath, target); err != nil {
			return "", err
		}
	}
	if err := f.moveEntry(srcPath, target); err != nil {
		if common.HasCode(err, common.EEXIST) {
			return "", common.Wrap(common.EEXIST, err, "%s already exists", filepath.Base(target))
		}
		return "", err
	}

	newV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return "", err
	}
	f.afterMove(ctx, v, srcPath, target)
	log.Debugf("[Files] moved %s to %s", v, newV)
	return newV, nil
}

// clearTarget removes an existing entry at target so srcPath can replace it.
// Base directories, protected paths and any ancestor of srcPath are refused.
func (f *Files) clearTarget(srcPath, target string) error {
	exists, err := pathExists(target)
	if err != nil || !exists {
		return err
	}
	targetV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return err
	}
	if f.registry.IsBaseDirectory(target) || f.policy.IsProtected(targetV) {
		return common.Errorf(common.ENOTSUP, "Cannot replace %s", targetV)
	}
	if common.IsWithin(srcPath, target) {
		return common.Errorf(common.EINVAL, "Cannot replace %s with an entry inside it", targetV)
	}
	return f.copier.RemoveAll(target)
}

// afterMove repoints favorites and shares and, for an entry that left the
// trash through a raw move, drops its trash record.
func (f *Files) afterMove(ctx context.Context, oldV, oldPath, newPath string) {
	f.ReplaceOrDelete(ctx, oldV, newPath)
	if f.registry.IsDirectChildOfTrash(oldPath) {
		f.dropTrashRecord(ctx, filepath.Base(oldPath))
	}
}

// moveEntry renames without replacing. Across devices it copies with
// progress, then removes the source.
func (f *Files) moveEntry(srcPath, target string) error {
	if !f.forceCopyMove {
		err := renameNoReplace(srcPath, target)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			return common.FromOS(err)
		}
	}

	log.Debugf("[Files] %s and %s are on different devices, copying", srcPath, target)
	if err := f.copyTracked(OperationMove, srcPath, target); err != nil {
		if !common.HasCode(err, common.EEXIST) {
			if rerr := f.copier.RemoveAll(target); rerr != nil {
				log.Warnf("[Files] failed to clean up partial copy %s: %v", target, rerr)
			}
		}
		return err
	}
	return f.copier.RemoveAll(srcPath)
}

// Delete permanently removes src.
func (f *Files) Delete(ctx context.Context, src string) error {
	v, srcPath, err := f.resolve(src)
	if err != nil {
		return err
	}
	if f.registry.IsBaseDirectory(srcPath) || f.policy.IsProtected(v) {
		return common.Errorf(common.ENOTSUP, "Cannot delete %s", v)
	}
	if err := mustExist(srcPath, v); err != nil {
		return err
	}
	if err := f.copier.RemoveAll(srcPath); err != nil {
		return err
	}

	if f.registry.IsTrash(srcPath) {
		if f.registry.IsDirectChildOfTrash(srcPath) {
			f.dropTrashRecord(ctx, filepath.Base(srcPath))
		}
	} else {
		f.dropReferences(ctx, v)
	}
	log.Debugf("[Files] deleted %s", v)
	return nil
}
