package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"homefs/internal/vfs"
)

var trashCmd = &cobra.Command{
	Use:   "trash <path>...",
	Short: "Move entries to the trash",
	Long: `Move entries to /Trash. Each trashed entry remembers its original location
so it can be restored. Favorites and shares of a trashed entry are dropped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrash,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <trash-path>...",
	Short: "Restore trashed entries to their original location",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRestore,
}

var emptyTrashCmd = &cobra.Command{
	Use:   "empty-trash",
	Short: "Permanently delete everything in the trash",
	Args:  cobra.NoArgs,
	RunE:  runEmptyTrash,
}

var auditTrashCmd = &cobra.Command{
	Use:   "audit-trash",
	Short: "Compare trash records with trash contents",
	Long: `List trash records whose entry is gone and trash entries that have no record.
Nothing is changed; 'homefs daemon maintain' purges the stale records.`,
	Args: cobra.NoArgs,
	RunE: runAuditTrash,
}

var (
	keepOriginalFlag     bool
	restoreOverwriteFlag bool
)

func init() {
	trashCmd.Flags().BoolVar(&keepOriginalFlag, "keep-original", false, "Trash a copy and leave the entry in place")
	restoreCmd.Flags().BoolVar(&restoreOverwriteFlag, "overwrite", false, "Replace an entry occupying the original location")
	rootCmd.AddCommand(trashCmd, restoreCmd, emptyTrashCmd, auditTrashCmd)
}

func runTrash(cmd *cobra.Command, args []string) error {
	opts := vfs.TrashOptions{KeepOriginal: keepOriginalFlag}
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		return relocateEach(args, func(src string) (string, error) {
			return files.Trash(ctx, src, opts)
		})
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		return relocateEach(args, func(src string) (string, error) {
			return files.Restore(ctx, src, restoreOverwriteFlag)
		})
	})
}

func runEmptyTrash(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		result, err := files.EmptyTrash(ctx)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("Deleted %d entries", result.Deleted)
		if result.Failed > 0 {
			line += fmt.Sprintf(", %d failed", result.Failed)
		}
		if err := printResult(result, line); err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("failed to delete %d trash entries", result.Failed)
		}
		return nil
	})
}

func runAuditTrash(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		audit, err := files.AuditTrash(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(audit)
		}
		if audit.Clean() {
			fmt.Println("Trash is consistent")
			return nil
		}
		for _, name := range audit.OrphanRecords {
			fmt.Printf("record without entry: %s\n", name)
		}
		for _, name := range audit.UnrecordedEntries {
			fmt.Printf("entry without record: %s\n", name)
		}
		return nil
	})
}
