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
	"path"
	"path/filepath"
	"strings"

	"homefs/internal/common"
)

// Virtual roots exposed to callers.
const (
	VirtualHome     = "/Home"
	VirtualTrash    = "/Trash"
	VirtualApps     = "/Apps"
	VirtualExternal = "/External"
)

// BaseDirectory binds a virtual root to a real directory on disk.
type BaseDirectory struct {
	SystemPath  string
	VirtualName string
}

// Name returns the virtual name without its leading slash.
func (b BaseDirectory) Name() string {
	return strings.TrimPrefix(b.VirtualName, "/")
}

// DefaultBaseDirectories lays the four roots out under dataDir,
// in registration order.
func DefaultBaseDirectories(dataDir string) []BaseDirectory {
	return []BaseDirectory{
		{SystemPath: filepath.Join(dataDir, "home"), VirtualName: VirtualHome},
		{SystemPath: filepath.Join(dataDir, "trash"), VirtualName: VirtualTrash},
		{SystemPath: filepath.Join(dataDir, "app-data"), VirtualName: VirtualApps},
		{SystemPath: filepath.Join(dataDir, "external"), VirtualName: VirtualExternal},
	}
}

// Registry is the fixed set of base directories. It is built once and
// never mutated, so it is safe for concurrent use.
type Registry struct {
	dirs     []BaseDirectory
	bySystem map[string]BaseDirectory
	trash    *BaseDirectory
}

// NewRegistry validates and registers dirs in order.
func NewRegistry(dirs ...BaseDirectory) (*Registry, error) {
	r := &Registry{bySystem: make(map[string]BaseDirectory, len(dirs))}
	seenNames := make(map[string]bool, len(dirs))

	for _, dir := range dirs {
		name := dir.VirtualName
		if name == "" || name == "/" || path.Clean(name) != name || !path.IsAbs(name) || strings.Count(name, "/") != 1 {
			return nil, common.Errorf(common.EINVAL, "invalid base directory name %q", name)
		}
		if seenNames[name] {
			return nil, common.Errorf(common.EINVAL, "duplicate base directory name %q", name)
		}
		if !filepath.IsAbs(dir.SystemPath) || filepath.Clean(dir.SystemPath) != dir.SystemPath {
			return nil, common.Errorf(common.EINVAL, "base directory %s must have an absolute clean system path, got %q", name, dir.SystemPath)
		}
		for _, other := range r.dirs {
			if common.IsWithin(dir.SystemPath, other.SystemPath) || common.IsWithin(other.SystemPath, dir.SystemPath) {
				return nil, common.Errorf(common.EINVAL, "base directories %s and %s overlap on disk", other.VirtualName, name)
			}
		}
		seenNames[name] = true
		r.dirs = append(r.dirs, dir)
		r.bySystem[dir.SystemPath] = dir
	}

	for i := range r.dirs {
		if r.dirs[i].VirtualName == VirtualTrash {
			r.trash = &r.dirs[i]
		}
	}
	return r, nil
}

// All returns the registered base directories in registration order.
func (r *Registry) All() []BaseDirectory {
	out := make([]BaseDirectory, len(r.dirs))
	copy(out, r.dirs)
	return out
}

// ByVirtualName returns the base directory registered under name.
func (r *Registry) ByVirtualName(name string) (BaseDirectory, bool) {
	for _, dir := range r.dirs {
		if dir.VirtualName == name {
			return dir, true
		}
	}
	return BaseDirectory{}, false
}

// TrashDirectory returns the trash base directory, if one is registered.
func (r *Registry) TrashDirectory() (BaseDirectory, bool) {
	if r.trash == nil {
		return BaseDirectory{}, false
	}
	return *r.trash, true
}
