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

package common

import (
	"path"
	"strings"
)

// MaxFilenameLength is the longest filename, in bytes, accepted for new entries.
const MaxFilenameLength = 255

const reservedChars = `<>:"/\|?*`

// ValidateVirtualPath normalizes a virtual path. The result is absolute,
// has no "." or ".." segments and no trailing slash (except for "/").
// It is idempotent. Unusual characters are accepted since virtual paths
// reference existing entries.
func ValidateVirtualPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", Errorf(EINVAL, "path contains a null byte")
	}
	if !strings.HasPrefix(p, "/") {
		return "", Errorf(EINVAL, "path must be absolute: %q", p)
	}
	return path.Clean(p), nil
}

// ValidateFilename checks a name introduced by create or rename and returns
// it trimmed of surrounding whitespace.
func ValidateFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Errorf(EINVAL, "filename must not be empty")
	}
	if name == "." || name == ".." {
		return "", Errorf(EINVAL, "invalid filename %q", name)
	}
	if path.Base(name) != name {
		return "", Errorf(EINVAL, "filename must not contain a path separator: %q", name)
	}
	if len(name) > MaxFilenameLength {
		return "", Errorf(EINVAL, "filename exceeds %d bytes", MaxFilenameLength)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", Errorf(EINVAL, "filename contains a control character")
		}
		if strings.ContainsRune(reservedChars, r) {
			return "", Errorf(EINVAL, "filename contains reserved character %q", r)
		}
	}
	return name, nil
}

// SplitPath splits a normalized absolute path into its segments.
// The root yields nil.
func SplitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// IsWithin reports whether p equals base or lies beneath it, comparing on
// segment boundaries ("/Home/Docs2" is not within "/Home/Docs").
func IsWithin(p, base string) bool {
	if p == base {
		return true
	}
	if base == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, base+"/")
}

// IsStrictlyWithin reports whether p lies beneath base and is not base itself.
func IsStrictlyWithin(p, base string) bool {
	return p != base && IsWithin(p, base)
}

// Rebase rewrites p from oldBase onto newBase. ok is false when p is not
// within oldBase.
func Rebase(p, oldBase, newBase string) (string, bool) {
	if !IsWithin(p, oldBase) {
		return "", false
	}
	rest := strings.TrimPrefix(p, oldBase)
	if oldBase == "/" {
		rest = "/" + rest
	}
	return path.Clean(newBase + rest), true
}

// ParentPath returns the parent of a normalized absolute path.
func ParentPath(p string) string {
	return path.Dir(p)
}

// BaseName returns the last segment of a path, or "" for the root.
func BaseName(p string) string {
	if p == "/" || p == "" {
		return ""
	}
	return path.Base(p)
}
