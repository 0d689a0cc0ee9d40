package commands

import (
	"context"

	"github.com/spf13/cobra"

	"homefs/internal/vfs"
)

var preferencesCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Show or change file view preferences",
	Long: `Show the view preferences file browsers use for listings, or change them.

Only the given flags change; the rest keep their stored values.

Examples:
  homefs preferences
  homefs preferences --view icons --sort-by modified --sort-order descending`,
	Args: cobra.NoArgs,
	RunE: runPreferences,
}

var preferencesUpdate vfs.ViewPreferences

func init() {
	preferencesCmd.Flags().StringVar(&preferencesUpdate.View, "view", "", "icons or list")
	preferencesCmd.Flags().StringVar(&preferencesUpdate.SortBy, "sort-by", "", "name, type, modified or size")
	preferencesCmd.Flags().StringVar(&preferencesUpdate.SortOrder, "sort-order", "", "ascending or descending")
	rootCmd.AddCommand(preferencesCmd)
}

func runPreferences(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		var prefs vfs.ViewPreferences
		var err error
		if preferencesUpdate == (vfs.ViewPreferences{}) {
			prefs, err = files.ViewPreferences(ctx)
		} else {
			prefs, err = files.UpdateViewPreferences(ctx, preferencesUpdate)
		}
		if err != nil {
			return err
		}
		return printResult(prefs,
			"View: "+prefs.View,
			"Sort by: "+prefs.SortBy,
			"Sort order: "+prefs.SortOrder,
		)
	})
}
