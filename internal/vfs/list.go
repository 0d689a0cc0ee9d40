package vfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"homefs/internal/common"
)

// readDirBatch is how many entries are read from a directory handle at once.
const readDirBatch = 256

// Listing is the result of ListDirectory.
type Listing struct {
	Stats Stats   `json:"stats"`
	Items []Stats `json:"items"`
	// TruncatedAt is set when the directory held more entries than the
	// listing limit; Items then holds only that many.
	TruncatedAt *int `json:"truncatedAt,omitempty"`
}

// ListDirectory stats a directory and its children. The meta-root lists
// the base directories.
func (f *Files) ListDirectory(ctx context.Context, virtualPath string) (*Listing, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return nil, err
	}
	if v == "/" {
		return f.listRoot(), nil
	}

	systemPath, err := f.registry.VirtualToSystemPath(v)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(systemPath)
	if err != nil {
		return nil, common.FromOS(err)
	}
	if !info.IsDir() {
		return nil, common.Errorf(common.ENOTDIR, "%s is not a directory", v)
	}

	names, truncatedAt, err := f.readNames(systemPath)
	if err != nil {
		return nil, err
	}

	items := make([]Stats, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			return f.statPool.Do(gctx, func() error {
				items[i] = f.Stat(filepath.Join(systemPath, name), path.Join(v, name))
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name < items[b].Name })

	log.Debugf("[List] %s: %d entries (truncated=%v)", v, len(items), truncatedAt != nil)
	return &Listing{
		Stats:       f.Stat(systemPath, v),
		Items:       items,
		TruncatedAt: truncatedAt,
	}, nil
}

// readNames enumerates visible entry names, stopping at the listing limit.
// The handle is closed on every path.
func (f *Files) readNames(systemPath string) (names []string, truncatedAt *int, err error) {
	dir, err := os.Open(systemPath)
	if err != nil {
		return nil, nil, common.FromOS(err)
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			log.Debugf("[List] close %s: %v", systemPath, cerr)
		}
	}()

	for {
		entries, rerr := dir.ReadDir(readDirBatch)
		for _, entry := range entries {
			if f.hidden.Hidden(entry.Name()) {
				continue
			}
			if len(names) >= f.maxListing {
				limit := f.maxListing
				return names, &limit, nil
			}
			names = append(names, entry.Name())
		}
		if errors.Is(rerr, io.EOF) {
			return names, nil, nil
		}
		if rerr != nil {
			return nil, nil, common.FromOS(rerr)
		}
	}
}

func (f *Files) listRoot() *Listing {
	listing := &Listing{
		Stats: Stats{Name: "", Path: "/", Type: TypeDirectory},
		Items: []Stats{},
	}
	for _, dir := range f.registry.All() {
		listing.Items = append(listing.Items, Stats{
			Name: dir.Name(),
			Path: dir.VirtualName,
			Type: TypeDirectory,
		})
	}
	return listing
}
