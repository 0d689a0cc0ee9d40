package commands

import (
	"context"

	"github.com/spf13/cobra"

	"homefs/internal/vfs"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <path>...",
	Short: "Zip entries into their directory",
	Long: `Zip entries that share one parent directory. A single entry produces
"<name>.zip", several produce "Archive.zip"; taken names get a numbered suffix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArchive,
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Extract an archive next to itself",
	Long: `Extract an archive into a new directory named after it, using the
extract_command from settings (unar by default).`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(archiveCmd, extractCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		v, err := files.Archive(ctx, args)
		if err != nil {
			return err
		}
		return printResult(pathChange{To: v}, v)
	})
}

func runExtract(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		return relocateEach(args, func(src string) (string, error) {
			return files.Extract(ctx, src)
		})
	})
}
