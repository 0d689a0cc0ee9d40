package vfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// ConsistencyResult is what happened to stored references after their
// target moved.
type ConsistencyResult int

const (
	// Unchanged means nothing referenced the moved path.
	Unchanged ConsistencyResult = iota
	// Repointed means references now follow the new location.
	Repointed
	// Deleted means the new location cannot be referenced, so the
	// references were dropped.
	Deleted
)

func (r ConsistencyResult) String() string {
	switch r {
	case Repointed:
		return "repointed"
	case Deleted:
		return "deleted"
	}
	return "unchanged"
}

// merge keeps the most drastic of two results.
func (r ConsistencyResult) merge(other ConsistencyResult) ConsistencyResult {
	if other > r {
		return other
	}
	return r
}

// ConsistencyReport holds the outcome for favorites and shares.
type ConsistencyReport struct {
	Favorites ConsistencyResult
	Shares    ConsistencyResult
}

// referenceUpdate is the planned fate of one stored reference.
type referenceUpdate struct {
	oldPath string
	newPath string // "" when the reference must be dropped
}

// ReplaceOrDelete repoints favorites and shares at or beneath oldVirtual to
// the entry now at newSystemPath. References that cannot follow the entry
// are dropped. Failures are logged and never returned.
func (f *Files) ReplaceOrDelete(ctx context.Context, oldVirtual, newSystemPath string) ConsistencyReport {
	var report ConsistencyReport
	var err error

	report.Favorites, err = f.favorites.replaceOrDelete(ctx, oldVirtual, newSystemPath)
	if err != nil {
		log.Warnf("[Consistency] failed to update favorites for %s: %v", oldVirtual, err)
	}
	report.Shares, err = f.shares.replaceOrDelete(ctx, oldVirtual, newSystemPath)
	if err != nil {
		log.Warnf("[Consistency] failed to update shares for %s: %v", oldVirtual, err)
	}
	return report
}

// dropReferences removes favorites and shares at or beneath a virtual path
// that no longer exists.
func (f *Files) dropReferences(ctx context.Context, v string) {
	if _, err := f.favorites.deleteWithin(ctx, v); err != nil {
		log.Warnf("[Consistency] failed to drop favorites under %s: %v", v, err)
	}
	if _, err := f.shares.deleteWithin(ctx, v); err != nil {
		log.Warnf("[Consistency] failed to drop shares under %s: %v", v, err)
	}
}

// planUpdates decides, for each stored path within oldVirtual, where it
// should point now. allowed filters new virtual paths a list refuses to
// hold.
func (f *Files) planUpdates(paths []string, oldVirtual, newSystemPath string, allowed func(string) bool) ([]referenceUpdate, ConsistencyResult) {
	newVirtual, err := f.registry.SystemToVirtualPath(newSystemPath)
	if err != nil || f.registry.IsTrash(newSystemPath) {
		newVirtual = ""
	}

	var updates []referenceUpdate
	result := Unchanged
	for _, p := range paths {
		if !common.IsWithin(p, oldVirtual) {
			continue
		}
		update := referenceUpdate{oldPath: p}
		if newVirtual != "" {
			rest := strings.TrimPrefix(strings.TrimPrefix(p, oldVirtual), "/")
			target, _ := common.Rebase(p, oldVirtual, newVirtual)
			if isDirectory(filepath.Join(newSystemPath, filepath.FromSlash(rest))) && (allowed == nil || allowed(target)) {
				update.newPath = target
			}
		}
		if update.newPath != "" {
			result = result.merge(Repointed)
		} else {
			result = result.merge(Deleted)
		}
		updates = append(updates, update)
	}
	return updates, result
}

func isDirectory(systemPath string) bool {
	info, err := os.Stat(systemPath)
	return err == nil && info.IsDir()
}
