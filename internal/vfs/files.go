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

// Package vfs maps the virtual roots (/Home, /Trash, /Apps, /External) onto
// real directories and performs structural operations on them, keeping
// trash records, favorites and shares consistent.
package vfs

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
	"homefs/internal/config"
	"homefs/internal/storage"
	"homefs/internal/util"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxDirectoryListing = 10000
	DefaultStatConcurrency     = 10
	DefaultDeleteConcurrency   = 4
	DefaultOrphanRecordGrace   = time.Minute
)

// favoritesInitializedKey marks that the default favorites were created.
const favoritesInitializedKey = "favorites_initialized"

// Options configures a Files instance.
type Options struct {
	// DataDirectory holds the base directories laid out by
	// DefaultBaseDirectories. Ignored when BaseDirectories is set.
	DataDirectory   string
	BaseDirectories []BaseDirectory

	MaxDirectoryListing int
	ProtectedPaths      []string
	UnshareablePaths    []string
	HiddenFiles         []string
	DefaultFavorites    []string

	// StatPool and DeletePool are shared by every caller of this instance.
	// Nil pools are created with the default sizes.
	StatPool   *util.Pool
	DeletePool *util.Pool

	// ShareConfig, when set, is regenerated after every share change.
	ShareConfig *SambaConfig

	ExtractCommand string

	// OrphanRecordGrace is how old a trash record must be before it is
	// purged for lacking an entry. Zero uses DefaultOrphanRecordGrace and a
	// negative value purges immediately.
	OrphanRecordGrace time.Duration

	// OnProgress, when set, receives the operations in progress whenever
	// a copy or cross-device move advances.
	OnProgress ProgressFunc
}

// OptionsFromSettings builds Options from loaded settings.
func OptionsFromSettings(s *config.Settings) Options {
	return Options{
		DataDirectory:       s.DataDirectory,
		MaxDirectoryListing: s.MaxDirectoryListing,
		ProtectedPaths:      s.ProtectedPaths,
		UnshareablePaths:    s.UnshareablePaths,
		HiddenFiles:         s.HiddenFiles,
		DefaultFavorites:    s.DefaultFavorites,
		StatPool:            util.NewPool("stat", s.StatConcurrency),
		DeletePool:          util.NewPool("delete", s.DeleteConcurrency),
		ShareConfig:         NewSambaConfig(s.ShareConfigPath, s.ShareUsername, CommandReload(s.ShareReloadCommand)),
		ExtractCommand:      s.ExtractCommand,
		OrphanRecordGrace:   time.Duration(s.TrashRecordGrace) * time.Second,
	}
}

// Files is the virtual filesystem layer. It is safe for concurrent use.
type Files struct {
	registry *Registry
	policy   *Policy
	hidden   *hiddenFilter
	meta     *storage.MetaFile
	copier   *copier

	statPool   *util.Pool
	deletePool *util.Pool
	maxListing int

	defaultFavorites []string
	extractCommand   string
	orphanGrace      time.Duration

	progress *progressTracker
	// forceCopyMove makes moves copy and delete as if across devices.
	forceCopyMove bool

	favorites *Favorites
	shares    *Shares
}

// New builds a Files instance over meta.
func New(meta *storage.MetaFile, opts Options) (*Files, error) {
	dirs := opts.BaseDirectories
	if dirs == nil {
		if opts.DataDirectory == "" {
			return nil, common.Errorf(common.EINVAL, "no data directory configured")
		}
		dirs = DefaultBaseDirectories(opts.DataDirectory)
	}
	registry, err := NewRegistry(dirs...)
	if err != nil {
		return nil, err
	}
	policy, err := NewPolicy(registry, opts.ProtectedPaths, opts.UnshareablePaths)
	if err != nil {
		return nil, err
	}

	hidden := opts.HiddenFiles
	if hidden == nil {
		hidden = DefaultHiddenFiles
	}
	maxListing := opts.MaxDirectoryListing
	if maxListing <= 0 {
		maxListing = DefaultMaxDirectoryListing
	}
	statPool := opts.StatPool
	if statPool == nil {
		statPool = util.NewPool("stat", DefaultStatConcurrency)
	}
	deletePool := opts.DeletePool
	if deletePool == nil {
		deletePool = util.NewPool("delete", DefaultDeleteConcurrency)
	}
	extract := opts.ExtractCommand
	if extract == "" {
		extract = DefaultExtractCommand
	}
	grace := opts.OrphanRecordGrace
	switch {
	case grace == 0:
		grace = DefaultOrphanRecordGrace
	case grace < 0:
		grace = 0
	}

	f := &Files{
		registry:         registry,
		policy:           policy,
		hidden:           newHiddenFilter(hidden),
		meta:             meta,
		copier:           newCopier(hostFS()),
		statPool:         statPool,
		deletePool:       deletePool,
		maxListing:       maxListing,
		defaultFavorites: opts.DefaultFavorites,
		extractCommand:   extract,
		orphanGrace:      grace,
		progress:         newProgressTracker(opts.OnProgress),
	}
	f.favorites = &Favorites{files: f}
	f.shares = &Shares{files: f, config: opts.ShareConfig}
	return f, nil
}

func (f *Files) Registry() *Registry   { return f.registry }
func (f *Files) Policy() *Policy       { return f.policy }
func (f *Files) Favorites() *Favorites { return f.favorites }
func (f *Files) Shares() *Shares       { return f.shares }
func (f *Files) StatPool() *util.Pool  { return f.statPool }

// Start creates missing base directories and, on first run, the default
// favorite directories. The share configuration is regenerated so it
// matches the stored shares.
func (f *Files) Start(ctx context.Context) error {
	for _, dir := range f.registry.All() {
		if err := os.MkdirAll(dir.SystemPath, 0o755); err != nil {
			return fmt.Errorf("failed to create base directory %s: %w", dir.VirtualName, err)
		}
	}

	if err := f.initDefaultFavorites(ctx); err != nil {
		return err
	}

	if _, err := f.shares.List(ctx); err != nil {
		log.Warnf("[Files] failed to sync shares: %v", err)
	}
	return nil
}

func (f *Files) initDefaultFavorites(ctx context.Context) error {
	done, err := f.meta.Config(ctx, favoritesInitializedKey)
	if err != nil {
		return err
	}
	if done != "" {
		return nil
	}

	for _, v := range f.defaultFavorites {
		if _, err := f.CreateDirectory(ctx, v); err != nil {
			log.Warnf("[Files] failed to create default favorite %s: %v", v, err)
			continue
		}
		if _, err := f.favorites.Add(ctx, v); err != nil {
			log.Warnf("[Files] failed to add default favorite %s: %v", v, err)
		}
	}

	log.Infof("[Files] initialized %d default favorites", len(f.defaultFavorites))
	return f.meta.WithWriteLock(ctx, func(tx *storage.Tx) error {
		return tx.SetConfig(favoritesInitializedKey, "true")
	})
}

// SupportedOperations returns the operations legal for a virtual path. The
// meta-root supports nothing.
func (f *Files) SupportedOperations(virtualPath string) (Operations, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return Operations{}, err
	}
	if v == "/" {
		return Operations{}, nil
	}
	systemPath, err := f.registry.VirtualToSystemPath(v)
	if err != nil {
		return Operations{}, err
	}
	return f.Stat(systemPath, v).AllowedOperations, nil
}

// StatPath validates and translates a virtual path, then stats it.
func (f *Files) StatPath(virtualPath string) (Stats, error) {
	v, err := common.ValidateVirtualPath(virtualPath)
	if err != nil {
		return Stats{}, err
	}
	if v == "/" {
		return f.listRoot().Stats, nil
	}
	systemPath, err := f.registry.VirtualToSystemPath(v)
	if err != nil {
		return Stats{}, err
	}
	return f.Stat(systemPath, v), nil
}
