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

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"homefs/internal/config"
	"homefs/internal/vfs"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the config and data directories",
	Long: `Create the config directory with a default settings.yaml, the metadata
database, the base directories under the data directory and, on first run,
the default favorite directories.

Running it again only adds what is missing.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	_, statErr := os.Stat(config.MetaFilePath())
	fresh := os.IsNotExist(statErr)

	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		if fresh {
			fmt.Printf("Initialized homefs in %s\n", config.ConfigDir())
		} else {
			fmt.Printf("Reinitialized existing homefs in %s\n", config.ConfigDir())
		}
		fmt.Printf("  settings: %s\n", config.SettingsPath())
		fmt.Printf("  data directory: %s\n", settings.DataDirectory)
		for _, dir := range files.Registry().All() {
			fmt.Printf("  %-10s %s\n", dir.VirtualName, dir.SystemPath)
		}
		return nil
	})
}
