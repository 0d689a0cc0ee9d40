package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"homefs/internal/vfs"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "List favorite directories",
	Args:    cobra.NoArgs,
	RunE:    runFavoritesList,
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <directory>...",
	Short: "Add directories to the favorites",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFavoritesAdd,
}

var favoritesRmCmd = &cobra.Command{
	Use:   "rm <directory>...",
	Short: "Remove directories from the favorites",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFavoritesRm,
}

var sharesCmd = &cobra.Command{
	Use:   "shares",
	Short: "List directories shared over SMB",
	Long: `List directories shared over SMB. Shares whose directory is gone are
removed and the share configuration is rewritten.`,
	Args: cobra.NoArgs,
	RunE: runSharesList,
}

var sharesAddCmd = &cobra.Command{
	Use:   "add <directory>...",
	Short: "Share directories over SMB",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSharesAdd,
}

var sharesRmCmd = &cobra.Command{
	Use:   "rm <directory>...",
	Short: "Stop sharing directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSharesRm,
}

func init() {
	favoritesCmd.AddCommand(favoritesAddCmd, favoritesRmCmd)
	sharesCmd.AddCommand(sharesAddCmd, sharesRmCmd)
	rootCmd.AddCommand(favoritesCmd, sharesCmd)
}

func runFavoritesList(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		favorites, err := files.Favorites().List(ctx)
		if err != nil {
			return err
		}
		return printResult(favorites, favorites...)
	})
}

func runFavoritesAdd(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		for _, p := range args {
			added, err := files.Favorites().Add(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			if !added {
				fmt.Printf("%s is already a favorite\n", p)
			}
		}
		return nil
	})
}

func runFavoritesRm(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		for _, p := range args {
			deleted, err := files.Favorites().Delete(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			if !deleted {
				fmt.Printf("%s is not a favorite\n", p)
			}
		}
		return nil
	})
}

func runSharesList(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		shares, err := files.Shares().List(ctx)
		if err != nil {
			return err
		}
		lines := make([]string, 0, len(shares))
		for _, share := range shares {
			lines = append(lines, fmt.Sprintf("%-24s %s", share.Name, share.Path))
		}
		return printResult(shares, lines...)
	})
}

func runSharesAdd(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		for _, p := range args {
			name, err := files.Shares().Add(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			fmt.Printf("%s shared as %q\n", p, name)
		}
		return nil
	})
}

func runSharesRm(cmd *cobra.Command, args []string) error {
	return withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
		for _, p := range args {
			deleted, err := files.Shares().Delete(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			if !deleted {
				fmt.Printf("%s is not shared\n", p)
			}
		}
		return nil
	})
}
