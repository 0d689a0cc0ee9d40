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

	"github.com/spf13/cobra"

	"homefs/internal/vfs"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the entries of a virtual directory. Without a path, lists the base
directories (/Home, /Trash, /Apps, /External).

Examples:
  homefs ls
  homefs ls /Home/Documents
  homefs ls --json /Trash`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show details and allowed operations for a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>...",
	Short: "Create directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMkdir,
}

var cpCmd = &cobra.Command{
	Use:   "cp <source>... <directory>",
	Short: "Copy entries into a directory",
	Long: `Copy entries into a directory. A name that is already taken gets a
numbered suffix, "report (2).pdf", unless --overwrite is given. Copying into
/Trash trashes a copy.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCp,
}

var mvCmd = &cobra.Command{
	Use:   "mv <source>... <directory>",
	Short: "Move entries into a directory",
	Long: `Move entries into a directory. Favorites and shares follow the entry.
Moving into /Trash trashes the entry.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMv,
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename an entry in place",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete entries permanently",
	Long:  `Delete entries permanently. Use 'homefs trash' to keep them restorable.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

var (
	overwriteFlag bool
	progressFlag  bool
)

func init() {
	for _, cmd := range []*cobra.Command{cpCmd, mvCmd, renameCmd} {
		cmd.Flags().BoolVar(&overwriteFlag, "overwrite", false, "Replace an existing entry with the same name")
	}
	for _, cmd := range []*cobra.Command{cpCmd, mvCmd} {
		cmd.Flags().BoolVar(&progressFlag, "progress", false, "Show copy progress on stderr")
	}
	rootCmd.AddCommand(lsCmd, statCmd, mkdirCmd, cpCmd, mvCmd, renameCmd, rmCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	target := "/"
	if len(args) > 0 {
		target = args[0]
	}
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		listing, err := files.ListDirectory(ctx, target)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(listing)
		}
		for _, item := range listing.Items {
			fmt.Println(formatEntry(item))
		}
		if listing.TruncatedAt != nil {
			fmt.Printf("(showing %d of %d entries)\n", len(listing.Items), *listing.TruncatedAt)
		}
		return nil
	})
}

func runStat(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		stats, err := files.StatPath(args[0])
		if err != nil {
			return err
		}
		return printResult(stats, formatStats(stats)...)
	})
}

func runMkdir(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		var created []string
		for _, p := range args {
			v, err := files.CreateDirectory(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			created = append(created, v)
		}
		return printResult(created, created...)
	})
}

// pathChange is the JSON form of a relocated entry.
type pathChange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// relocateEach applies op to every source in order and stops at the first
// failure. Entries handled before the failure are reported.
func relocateEach(sources []string, op func(src string) (string, error)) error {
	var changes []pathChange
	var lines []string
	var failed error
	for _, src := range sources {
		to, err := op(src)
		if err != nil {
			failed = fmt.Errorf("%s: %w", src, err)
			break
		}
		changes = append(changes, pathChange{From: src, To: to})
		lines = append(lines, arrow(src, to))
	}
	if err := printResult(changes, lines...); err != nil {
		return err
	}
	return failed
}

func runCp(cmd *cobra.Command, args []string) error {
	sources, dest := args[:len(args)-1], args[len(args)-1]
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		return relocateEach(sources, func(src string) (string, error) {
			return files.Copy(ctx, src, dest, overwriteFlag)
		})
	})
}

func runMv(cmd *cobra.Command, args []string) error {
	sources, dest := args[:len(args)-1], args[len(args)-1]
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		return relocateEach(sources, func(src string) (string, error) {
			return files.Move(ctx, src, dest, overwriteFlag)
		})
	})
}

func runRename(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		return relocateEach(args[:1], func(src string) (string, error) {
			return files.Rename(ctx, src, args[1], overwriteFlag)
		})
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		var deleted []string
		for _, p := range args {
			if err := files.Delete(ctx, p); err != nil {
				_ = printResult(deleted, deleted...)
				return fmt.Errorf("%s: %w", p, err)
			}
			deleted = append(deleted, p)
		}
		if jsonOutput {
			return printJSON(deleted)
		}
		fmt.Printf("Deleted %d entries\n", len(deleted))
		return nil
	})
}
