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
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// EntryKind is the coarse type the permission model distinguishes.
type EntryKind int

const (
	KindUnknown EntryKind = iota
	KindDirectory
	KindOther
)

// Default policy globs, matched against virtual paths.
var (
	DefaultProtectedPaths   = []string{"/Apps/*", "/Home/Downloads", "/External/*"}
	DefaultUnshareablePaths = []string{"/Apps", "/Apps/**", "/External", "/External/**"}
)

// archiveExtensions are matched against the lowercased name. Compound
// extensions come first for readability only; any match counts.
var archiveExtensions = []string{
	".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.xz", ".txz",
	".tar", ".zip", ".7z", ".rar", ".gz", ".bz2", ".xz",
}

// IsArchive reports whether name carries a recognized archive extension.
func IsArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Policy decides which operations a path supports. Decisions depend only on
// location and entry kind, never on stored state.
type Policy struct {
	registry    *Registry
	protected   []string
	unshareable []string
}

// NewPolicy compiles a policy. Nil glob lists take the defaults; invalid
// globs are rejected with EINVAL.
func NewPolicy(registry *Registry, protected, unshareable []string) (*Policy, error) {
	if protected == nil {
		protected = DefaultProtectedPaths
	}
	if unshareable == nil {
		unshareable = DefaultUnshareablePaths
	}
	for _, pattern := range append(append([]string{}, protected...), unshareable...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, common.Errorf(common.EINVAL, "invalid path pattern %q", pattern)
		}
	}
	return &Policy{
		registry:    registry,
		protected:   protected,
		unshareable: unshareable,
	}, nil
}

// IsProtected reports whether a virtual path may be read and copied but not
// structurally altered.
func (p *Policy) IsProtected(virtualPath string) bool {
	return matchAny(p.protected, virtualPath)
}

// IsUnshareable reports whether a virtual path may never be shared.
func (p *Policy) IsUnshareable(virtualPath string) bool {
	return matchAny(p.unshareable, virtualPath)
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			log.Warnf("[Policy] bad pattern %q: %v", pattern, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Operations returns the operations legal for the entry at systemPath.
func (p *Policy) Operations(systemPath, virtualPath string, kind EntryKind) Operations {
	isBase := p.registry.IsBaseDirectory(systemPath)
	inTrash := p.registry.IsTrash(systemPath)
	trashChild := p.registry.IsDirectChildOfTrash(systemPath)

	var ops Operations
	if kind == KindDirectory || (kind == KindUnknown && isBase) {
		ops = NewOperations(OpCopy, OpCopyTo, OpMoveTo)
		if !isBase {
			ops = ops.With(OpMove, OpDelete)
		}
		if !inTrash {
			ops = ops.With(OpCreateWithin, OpTrash, OpShare, OpFavorite)
			if !isBase {
				ops = ops.With(OpRename, OpArchive)
			}
		}
	} else {
		ops = NewOperations(OpCopy, OpMove, OpDelete)
		if !inTrash {
			ops = ops.With(OpRename, OpTrash)
			if IsArchive(virtualPath) {
				ops = ops.With(OpExtract)
			}
		}
	}
	if trashChild {
		ops = ops.With(OpRestore)
	}

	if p.IsProtected(virtualPath) {
		ops = ops.Without(OpMove, OpRename, OpDelete, OpTrash)
	}
	if p.IsUnshareable(virtualPath) {
		ops = ops.Without(OpShare)
	}
	return ops
}
