package vfs

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
	"homefs/internal/storage"
)

// Shares is the set of directories exported over SMB.
type Shares struct {
	files  *Files
	config *SambaConfig
}

// List returns valid shares. Shares whose directory is gone are purged
// from storage, since the server configuration is built from this list.
func (s *Shares) List(ctx context.Context) ([]storage.Share, error) {
	var valid []storage.Share
	err := s.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		valid = []storage.Share{}
		shares, err := tx.Shares()
		if err != nil {
			return err
		}
		for _, share := range shares {
			if reason := s.invalidReason(share.Path); reason != "" {
				log.Infof("[Shares] cleaned up invalid share %q at %s: %s", share.Name, share.Path, reason)
				if _, err := tx.DeleteShare(share.Path); err != nil {
					return err
				}
				continue
			}
			valid = append(valid, share)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.sync(ctx, valid)
	return valid, nil
}

func (s *Shares) invalidReason(v string) string {
	systemPath, err := s.files.registry.VirtualToSystemPath(v)
	if err != nil {
		return err.Error()
	}
	if s.files.registry.IsTrash(systemPath) {
		return "share path is in the trash"
	}
	if !isDirectory(systemPath) {
		return "share path is not a directory"
	}
	return ""
}

// Get returns the share exporting a virtual path, nil if none.
func (s *Shares) Get(ctx context.Context, virtualPath string) (*storage.Share, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return nil, err
	}
	shares, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range shares {
		if shares[i].Path == v {
			return &shares[i], nil
		}
	}
	return nil, nil
}

// Add shares a directory and returns its share name. Sharing an already
// shared directory returns the existing name.
func (s *Shares) Add(ctx context.Context, virtualPath string) (string, error) {
	v, systemPath, err := s.files.resolve(virtualPath)
	if err != nil {
		return "", err
	}
	if s.files.policy.IsUnshareable(v) {
		return "", common.Errorf(common.ENOTSUP, "Cannot share a protected directory")
	}
	if s.files.registry.IsTrash(systemPath) {
		return "", common.Errorf(common.ENOTSUP, "Cannot share trash")
	}
	if !isDirectory(systemPath) {
		return "", common.Errorf(common.ENOTDIR, "Share path is not a directory")
	}
	basename := s.files.registry.virtualName(systemPath)

	var name string
	var added bool
	err = s.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		added = false
		existing, err := tx.ShareByPath(v)
		if err != nil {
			return err
		}
		if existing != nil {
			name = existing.Name
			return nil
		}

		name = basename
		for next := 2; ; next++ {
			taken, err := tx.ShareNameExists(name)
			if err != nil {
				return err
			}
			if !taken {
				break
			}
			if next > SuffixSearchMaxIterations {
				return common.Errorf(common.EEXIST, "Gave up searching for a suffix")
			}
			name = fmt.Sprintf("%s (%d)", basename, next)
		}
		if err := tx.AddShare(name, v); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if added {
		log.Infof("[Shares] shared %s as %q", v, name)
		s.resync(ctx)
	}
	return name, nil
}

// Delete stops sharing a virtual path. Returns false when it was not shared.
func (s *Shares) Delete(ctx context.Context, virtualPath string) (bool, error) {
	v, _, err := s.files.resolve(virtualPath)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = s.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		var txErr error
		deleted, txErr = tx.DeleteShare(v)
		return txErr
	})
	if err != nil {
		return false, err
	}
	if deleted {
		log.Infof("[Shares] unshared %s", v)
		s.resync(ctx)
	}
	return deleted, nil
}

func (s *Shares) replaceOrDelete(ctx context.Context, oldVirtual, newSystemPath string) (ConsistencyResult, error) {
	result := Unchanged
	shareable := func(v string) bool { return !s.files.policy.IsUnshareable(v) }
	err := s.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		shares, err := tx.Shares()
		if err != nil {
			return err
		}
		paths := make([]string, len(shares))
		for i, share := range shares {
			paths[i] = share.Path
		}
		var updates []referenceUpdate
		updates, result = s.files.planUpdates(paths, oldVirtual, newSystemPath, shareable)
		for _, u := range updates {
			if u.newPath == "" {
				_, err = tx.DeleteShare(u.oldPath)
			} else {
				_, err = tx.RepointShare(u.oldPath, u.newPath)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Unchanged, err
	}
	if result != Unchanged {
		log.Debugf("[Shares] %s under %s", result, oldVirtual)
		s.resync(ctx)
	}
	return result, nil
}

// deleteWithin drops shares at or beneath v.
func (s *Shares) deleteWithin(ctx context.Context, v string) (int, error) {
	var dropped int
	err := s.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		dropped = 0
		shares, err := tx.Shares()
		if err != nil {
			return err
		}
		for _, share := range shares {
			if !common.IsWithin(share.Path, v) {
				continue
			}
			if _, err := tx.DeleteShare(share.Path); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	if err == nil && dropped > 0 {
		s.resync(ctx)
	}
	return dropped, err
}

// resync rebuilds the server configuration from stored shares.
func (s *Shares) resync(ctx context.Context) {
	if s.config == nil {
		return
	}
	if _, err := s.List(ctx); err != nil {
		log.Errorf("[Shares] failed to synchronize shares: %v", err)
	}
}

// sync writes the server configuration for shares. Failures are logged.
func (s *Shares) sync(ctx context.Context, shares []storage.Share) {
	if s.config == nil {
		return
	}
	exports := make([]ShareExport, 0, len(shares))
	for _, share := range shares {
		systemPath, err := s.files.registry.VirtualToSystemPath(share.Path)
		if err != nil {
			log.Errorf("[Shares] failed to map share path %s: %v", share.Path, err)
			continue
		}
		exports = append(exports, ShareExport{Name: share.Name, SystemPath: systemPath})
	}
	if err := s.config.Write(ctx, exports); err != nil {
		log.Errorf("[Shares] %v", err)
	}
}
