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
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
	"homefs/internal/storage"
	"homefs/internal/util"
)

// Collision handling for concurrent trashing of equally named entries.
const (
	trashCollisionAttempts = 10
	trashCollisionDelay    = 100 * time.Millisecond
)

// TrashOptions tunes Trash.
type TrashOptions struct {
	// KeepOriginal copies the entry into the trash instead of moving it.
	KeepOriginal bool
}

// EmptyTrashResult counts the outcome of EmptyTrash.
type EmptyTrashResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// TrashAudit lists disagreements between trash records and trash entries.
type TrashAudit struct {
	// OrphanRecords are records whose entry no longer exists.
	OrphanRecords []string `json:"orphanRecords"`
	// UnrecordedEntries are trash entries without a record.
	UnrecordedEntries []string `json:"unrecordedEntries"`
}

// Clean reports whether every record has an entry and vice versa.
func (a TrashAudit) Clean() bool {
	return len(a.OrphanRecords) == 0 && len(a.UnrecordedEntries) == 0
}

func (f *Files) trashRoot() (BaseDirectory, error) {
	trash, ok := f.registry.TrashDirectory()
	if !ok {
		return BaseDirectory{}, common.Errorf(common.ENOTSUP, "No trash directory is registered")
	}
	return trash, nil
}

// Trash moves src into the trash, recording where it came from, and returns
// its virtual path inside the trash.
func (f *Files) Trash(ctx context.Context, src string, opts TrashOptions) (string, error) {
	v, srcPath, err := f.resolve(src)
	if err != nil {
		return "", err
	}
	if f.registry.IsBaseDirectory(srcPath) || f.registry.IsTrash(srcPath) || f.policy.IsProtected(v) {
		return "", common.Errorf(common.ENOTSUP, "Cannot trash %s", v)
	}
	trash, err := f.trashRoot()
	if err != nil {
		return "", err
	}
	if err := mustExist(srcPath, v); err != nil {
		return "", err
	}
	if err := os.MkdirAll(trash.SystemPath, 0o755); err != nil {
		return "", common.FromOS(err)
	}

	target, err := util.RetryWithResult(ctx, func() (string, error) {
		return f.trashOnce(ctx, v, srcPath, trash.SystemPath, opts)
	}, util.CollisionRetryOptions(ctx, trashCollisionAttempts, trashCollisionDelay)...)
	if err != nil {
		return "", err
	}

	if !opts.KeepOriginal {
		f.dropReferences(ctx, v)
	}
	newV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return "", err
	}
	log.Debugf("[Trash] trashed %s as %s", v, newV)
	return newV, nil
}

// trashOnce reserves a trash name by writing its record, then moves or
// copies the entry there. A failed move drops the reservation again.
func (f *Files) trashOnce(ctx context.Context, v, srcPath, trashPath string, opts TrashOptions) (string, error) {
	var target string
	err := f.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		var err error
		target, err = uniqueName(filepath.Join(trashPath, filepath.Base(srcPath)), TrashSuffixSearchMaxIterations,
			func(candidate string) (bool, error) {
				if exists, err := pathExists(candidate); err != nil || exists {
					return exists, err
				}
				record, err := tx.TrashRecord(filepath.Base(candidate))
				return record != nil, err
			})
		if err != nil {
			return err
		}
		return tx.PutTrashRecord(filepath.Base(target), v)
	})
	if err != nil {
		return "", err
	}

	if opts.KeepOriginal {
		err = f.copier.Copy(srcPath, target)
		if err != nil && !common.HasCode(err, common.EEXIST) {
			if rerr := f.copier.RemoveAll(target); rerr != nil {
				log.Warnf("[Trash] failed to clean up partial copy %s: %v", target, rerr)
			}
		}
	} else {
		err = f.moveEntry(srcPath, target)
	}
	if err != nil {
		f.dropTrashRecord(ctx, filepath.Base(target))
		if common.HasCode(err, common.EEXIST) {
			log.Debugf("[Trash] %s was taken concurrently, retrying", target)
		}
		return "", err
	}
	return target, nil
}

// Restore moves a trashed entry back to where it came from and returns its
// restored virtual path. Entries nested inside a trashed directory restore
// beneath that directory's original location.
func (f *Files) Restore(ctx context.Context, src string, overwrite bool) (string, error) {
	v, srcPath, err := f.resolve(src)
	if err != nil {
		return "", err
	}
	if !f.registry.IsTrash(srcPath) || f.registry.IsBaseDirectory(srcPath) {
		return "", common.Errorf(common.ENOTSUP, "Cannot restore %s", v)
	}
	trash, err := f.trashRoot()
	if err != nil {
		return "", err
	}
	if err := mustExist(srcPath, v); err != nil {
		return "", err
	}

	rest, _ := common.Rebase(v, trash.VirtualName, "/")
	segments := common.SplitPath(rest)
	trashName := segments[0]
	record, err := f.meta.TrashRecord(ctx, trashName)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", common.Errorf(common.ENOENT, "No trash record for %s", trashName)
	}

	originalV := path.Join(append([]string{record.OriginalPath}, segments[1:]...)...)
	target, err := f.registry.VirtualToSystemPath(originalV)
	if err != nil {
		return "", err
	}
	if overwrite {
		if err := f.clearTarget(srcPath, target); err != nil {
			return "", err
		}
	} else if target, err = UniqueName(target, SuffixSearchMaxIterations); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", common.FromOS(err)
	}
	if err := f.moveEntry(srcPath, target); err != nil {
		return "", err
	}

	if len(segments) == 1 {
		f.dropTrashRecord(ctx, trashName)
	}
	newV, err := f.registry.SystemToVirtualPath(target)
	if err != nil {
		return "", err
	}
	log.Debugf("[Trash] restored %s to %s", v, newV)
	return newV, nil
}

// EmptyTrash permanently deletes every top-level trash entry through the
// delete pool, then purges records left without an entry.
func (f *Files) EmptyTrash(ctx context.Context) (EmptyTrashResult, error) {
	trash, err := f.trashRoot()
	if err != nil {
		return EmptyTrashResult{}, err
	}
	names, err := readAllNames(trash.SystemPath)
	if err != nil {
		return EmptyTrashResult{}, err
	}

	var deleted, failed atomic.Int64
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.deletePool.Do(ctx, func() error {
				return f.copier.RemoveAll(filepath.Join(trash.SystemPath, name))
			})
			if err != nil {
				log.Warnf("[Trash] failed to delete %s: %v", name, err)
				failed.Add(1)
				return
			}
			f.dropTrashRecord(ctx, name)
			deleted.Add(1)
		}()
	}
	wg.Wait()

	if _, err := f.purgeOrphanRecords(ctx); err != nil {
		log.Warnf("[Trash] failed to purge orphan records: %v", err)
	}

	result := EmptyTrashResult{Deleted: int(deleted.Load()), Failed: int(failed.Load())}
	log.Infof("[Trash] emptied trash: %d deleted, %d failed", result.Deleted, result.Failed)
	return result, nil
}

// AuditTrash compares trash records with the entries in the trash.
func (f *Files) AuditTrash(ctx context.Context) (TrashAudit, error) {
	trash, err := f.trashRoot()
	if err != nil {
		return TrashAudit{}, err
	}
	records, err := f.meta.TrashRecords(ctx)
	if err != nil {
		return TrashAudit{}, err
	}
	names, err := readAllNames(trash.SystemPath)
	if err != nil && !common.HasCode(err, common.ENOENT) {
		return TrashAudit{}, err
	}

	entries := make(map[string]bool, len(names))
	for _, name := range names {
		entries[name] = true
	}
	audit := TrashAudit{OrphanRecords: []string{}, UnrecordedEntries: []string{}}
	recorded := make(map[string]bool, len(records))
	for _, record := range records {
		recorded[record.TrashName] = true
		if !entries[record.TrashName] {
			audit.OrphanRecords = append(audit.OrphanRecords, record.TrashName)
		}
	}
	for _, name := range names {
		if !recorded[name] {
			audit.UnrecordedEntries = append(audit.UnrecordedEntries, name)
		}
	}
	sort.Strings(audit.OrphanRecords)
	sort.Strings(audit.UnrecordedEntries)
	return audit, nil
}

// purgeOrphanRecords deletes records whose trash entry is gone. Records
// younger than the grace period are kept, as Trash writes the record before
// moving the entry.
func (f *Files) purgeOrphanRecords(ctx context.Context) (int, error) {
	trash, err := f.trashRoot()
	if err != nil {
		return 0, err
	}
	var purged int
	err = f.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		purged = 0
		records, err := tx.TrashRecords()
		if err != nil {
			return err
		}
		for _, record := range records {
			if time.Since(record.CreatedAt) < f.orphanGrace {
				continue
			}
			exists, err := pathExists(filepath.Join(trash.SystemPath, record.TrashName))
			if err != nil || exists {
				continue
			}
			if _, err := tx.DeleteTrashRecord(record.TrashName); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if purged > 0 {
		log.Infof("[Trash] purged %d orphan trash records", purged)
	}
	return purged, err
}

// dropTrashRecord deletes a trash record, logging failures.
func (f *Files) dropTrashRecord(ctx context.Context, trashName string) {
	err := f.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		_, err := tx.DeleteTrashRecord(trashName)
		return err
	})
	if err != nil {
		log.Warnf("[Trash] failed to delete trash record %s: %v", trashName, err)
	}
}

// readAllNames lists every entry name in a directory.
func readAllNames(systemPath string) ([]string, error) {
	dir, err := os.Open(systemPath)
	if err != nil {
		return nil, common.FromOS(err)
	}
	defer dir.Close()

	var names []string
	for {
		batch, err := dir.Readdirnames(readDirBatch)
		names = append(names, batch...)
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, common.FromOS(err)
		}
	}
}
