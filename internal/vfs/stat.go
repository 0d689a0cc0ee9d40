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
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"homefs/internal/common"
)

// Entry types reported for anything that is not a regular file.
const (
	TypeDirectory       = "directory"
	TypeBlockDevice     = "block-device"
	TypeCharacterDevice = "character-device"
	TypeSymbolicLink    = "symbolic-link"
	TypeFIFO            = "fifo"
	TypeSocket          = "socket"

	// DefaultMimeType is reported for regular files of unknown type.
	DefaultMimeType = "application/octet-stream"
)

// Stats describes one entry as callers see it. Optional fields are nil when
// they could not be determined.
type Stats struct {
	Name              string     `json:"name"`
	Path              string     `json:"path"`
	Type              string     `json:"type,omitempty"`
	Size              *int64     `json:"size,omitempty"`
	Created           *time.Time `json:"created,omitempty"`
	Modified          *time.Time `json:"modified,omitempty"`
	Error             string     `json:"error,omitempty"`
	AllowedOperations Operations `json:"operations"`
}

// IsDirectory reports whether the entry is a directory.
func (s Stats) IsDirectory() bool {
	return s.Type == TypeDirectory
}

// Stat describes the entry at systemPath. It never fails: errors are
// recorded in Stats.Error and the operation set degrades accordingly.
func (f *Files) Stat(systemPath, virtualPath string) Stats {
	stats := Stats{
		Name: f.registry.virtualName(systemPath),
		Path: virtualPath,
	}

	info, err := os.Lstat(systemPath)
	if err != nil {
		stats.Error = errorCode(err)
		if errors.Is(err, fs.ErrNotExist) {
			stats.AllowedOperations = f.policy.Operations(systemPath, virtualPath, KindUnknown)
		}
		log.Tracef("[Stat] %s: %v", systemPath, err)
		return stats
	}

	stats.Type = entryType(info)
	size := info.Size()
	modified := info.ModTime()
	stats.Size = &size
	stats.Modified = &modified
	if created, ok := birthTime(systemPath, info); ok {
		stats.Created = &created
	}

	kind := KindOther
	if info.IsDir() {
		kind = KindDirectory
	}
	stats.AllowedOperations = f.policy.Operations(systemPath, virtualPath, kind)
	return stats
}

// entryType maps a file mode onto the reported type, falling back to an
// extension-based MIME type for regular files.
func entryType(info fs.FileInfo) string {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return TypeDirectory
	case mode&fs.ModeSymlink != 0:
		return TypeSymbolicLink
	case mode&fs.ModeNamedPipe != 0:
		return TypeFIFO
	case mode&fs.ModeSocket != 0:
		return TypeSocket
	case mode&fs.ModeCharDevice != 0:
		return TypeCharacterDevice
	case mode&fs.ModeDevice != 0:
		return TypeBlockDevice
	}
	return MimeType(info.Name())
}

// MimeType guesses a MIME type from a file name's extension.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return DefaultMimeType
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return DefaultMimeType
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// errorCode renders err as the code stored in Stats.Error.
func errorCode(err error) string {
	if code, ok := common.Code(common.FromOS(err)); ok {
		return common.CodeName(code)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return common.CodeName(errno)
	}
	return "EIO"
}
