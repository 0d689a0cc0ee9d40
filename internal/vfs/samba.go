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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Modes applied by the SMB server to files and directories it creates.
const (
	shareFileMode      = 0o644
	shareDirectoryMode = 0o755
)

// ReloadFunc tells the SMB server to pick up a new share configuration.
// shares is the number of exported shares.
type ReloadFunc func(ctx context.Context, shares int) error

// EnvShareCount is set for reload commands to the number of exported shares.
const EnvShareCount = "HOMEFS_SHARE_COUNT"

// CommandReload returns a ReloadFunc running argv after every write. A nil
// argv yields a nil ReloadFunc.
func CommandReload(argv []string) ReloadFunc {
	if len(argv) == 0 {
		return nil
	}
	return func(ctx context.Context, shares int) error {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(), EnvShareCount+"="+strconv.Itoa(shares))
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}

// ShareExport is one share as written to the server configuration.
type ShareExport struct {
	Name       string
	SystemPath string
}

// SambaConfig renders shares into an smb.conf include file.
type SambaConfig struct {
	path     string
	username string
	reload   ReloadFunc
}

// NewSambaConfig writes to path. username, when set, restricts access and
// names the Home share; reload may be nil.
func NewSambaConfig(path, username string, reload ReloadFunc) *SambaConfig {
	return &SambaConfig{path: path, username: username, reload: reload}
}

// Path returns the configuration file path.
func (c *SambaConfig) Path() string {
	return c.path
}

// displayName is the name clients see for a share.
func (c *SambaConfig) displayName(name string) string {
	if name == "Home" {
		if c.username != "" {
			return c.username + "'s homefs"
		}
		return name
	}
	return name + " (homefs)"
}

// Render builds the configuration for exports. Shares whose display name
// cannot be made unique are left out.
func (c *SambaConfig) Render(exports []ShareExport) string {
	used := make(map[string]bool, len(exports))
	sections := make([]string, 0, len(exports))

	for _, export := range exports {
		sanitized := strings.NewReplacer("[", "_", "]", "_").Replace(export.Name)
		name := c.displayName(sanitized)
		for next := 2; used[name]; next++ {
			if next > SuffixSearchMaxIterations {
				log.Errorf("[Samba] gave up searching for a suffix for share %q", export.Name)
				name = ""
				break
			}
			name = fmt.Sprintf("%s (%d)", sanitized, next)
		}
		if name == "" {
			continue
		}
		used[name] = true

		var b strings.Builder
		fmt.Fprintf(&b, "[%s]\n", name)
		fmt.Fprintf(&b, "path = %s\n", export.SystemPath)
		if c.username != "" {
			fmt.Fprintf(&b, "valid users = %s\n", c.username)
		}
		b.WriteString("writeable = yes\n")
		b.WriteString("inherit owner = yes\n")
		fmt.Fprintf(&b, "create mask = %04o\n", shareFileMode)
		fmt.Fprintf(&b, "directory mask = %04o\n", shareDirectoryMode)
		b.WriteString("fruit:time machine = yes\n")
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n")
}

// Write atomically replaces the configuration file, then runs the reload
// hook.
func (c *SambaConfig) Write(ctx context.Context, exports []ShareExport) error {
	if c == nil || c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create share config directory: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(c.path), "."+filepath.Base(c.path)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, []byte(c.Render(exports)), 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write share config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace share config: %w", err)
	}
	log.Debugf("[Samba] wrote %d shares to %s", len(exports), c.path)

	if c.reload != nil {
		if err := c.reload(ctx, len(exports)); err != nil {
			return fmt.Errorf("failed to reload share server: %w", err)
		}
	}
	return nil
}
