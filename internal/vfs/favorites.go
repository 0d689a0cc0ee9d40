package vfs

import (
	"context"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
	"homefs/internal/storage"
)

// Favorites is the ordered list of favorite directories.
//
// Entries whose directory is missing are hidden from List but kept in
// storage, so favorites on unmounted external drives come back.
type Favorites struct {
	files *Files
}

// List returns favorites that currently resolve to directories.
func (fav *Favorites) List(ctx context.Context) ([]string, error) {
	stored, err := fav.files.meta.Favorites(ctx)
	if err != nil {
		return nil, err
	}
	favorites := []string{}
	for _, v := range stored {
		systemPath, err := fav.files.registry.VirtualToSystemPath(v)
		if err != nil {
			log.Debugf("[Favorites] skipping %s: %v", v, err)
			continue
		}
		if !isDirectory(systemPath) {
			continue
		}
		favorites = append(favorites, v)
	}
	return favorites, nil
}

// Add appends a directory to the favorites. Returns false when it already
// was one.
func (fav *Favorites) Add(ctx context.Context, virtualPath string) (bool, error) {
	v, systemPath, err := fav.files.resolve(virtualPath)
	if err != nil {
		return false, err
	}
	stats := fav.files.Stat(systemPath, v)
	if !stats.AllowedOperations.Has(OpFavorite) {
		switch {
		case stats.Error != "":
			return false, common.Errorf(common.ENOENT, "%s does not exist", v)
		case !stats.IsDirectory():
			return false, common.Errorf(common.ENOTDIR, "%s is not a directory", v)
		}
		return false, common.Errorf(common.ENOTSUP, "Cannot favorite %s", v)
	}

	var added bool
	err = fav.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		var txErr error
		added, txErr = tx.AddFavorite(v)
		return txErr
	})
	if added {
		log.Debugf("[Favorites] added %s", v)
	}
	return added, err
}

// Delete removes a favorite. Returns false when it was not one.
func (fav *Favorites) Delete(ctx context.Context, virtualPath string) (bool, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = fav.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		var txErr error
		deleted, txErr = tx.DeleteFavorite(v)
		return txErr
	})
	return deleted, err
}

func (fav *Favorites) replaceOrDelete(ctx context.Context, oldVirtual, newSystemPath string) (ConsistencyResult, error) {
	result := Unchanged
	err := fav.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		paths, err := tx.Favorites()
		if err != nil {
			return err
		}
		var updates []referenceUpdate
		updates, result = fav.files.planUpdates(paths, oldVirtual, newSystemPath, nil)
		for _, u := range updates {
			if u.newPath == "" {
				_, err = tx.DeleteFavorite(u.oldPath)
			} else {
				_, err = tx.RepointFavorite(u.oldPath, u.newPath)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if result != Unchanged {
		log.Debugf("[Favorites] %s under %s", result, oldVirtual)
	}
	return result, err
}

// deleteWithin drops favorites at or beneath v.
func (fav *Favorites) deleteWithin(ctx context.Context, v string) (int, error) {
	var dropped int
	err := fav.files.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		dropped = 0
		paths, err := tx.Favorites()
		if err != nil {
			return err
		}
		for _, p := range paths {
			if !common.IsWithin(p, v) {
				continue
			}
			if _, err := tx.DeleteFavorite(p); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	return dropped, err
}
