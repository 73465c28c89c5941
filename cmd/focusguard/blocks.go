package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the block list",
}

var (
	addPermanent bool
	addCategory  string
	addPattern   string
	listSearch   string
	listCategory string
	clearYes     bool
)

var blockAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Block a site",
	Long: `Adds a site to the block list. Session blocks apply while a focus
session runs; --permanent blocks always apply.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			entry, err := a.blocks.Add(ctx, a.owner, args[0], usecase.AddOptions{
				Permanent: addPermanent,
				Category:  addCategory,
				Pattern:   addPattern,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Blocked %s (%s) [%s]\n", entry.NormalizedURL, blockKind(entry), entry.ID)
			return nil
		})
	},
}

var blockRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a block entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.blocks.Remove(ctx, a.owner, args[0]); err != nil {
				return err
			}
			fmt.Println("Removed")
			return nil
		})
	},
}

var blockToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Switch an entry between session and permanent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			entry, err := a.blocks.TogglePermanent(ctx, a.owner, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", entry.NormalizedURL, blockKind(entry))
			return nil
		})
	},
}

var blockCategoryCmd = &cobra.Command{
	Use:   "category <id> [category]",
	Short: "Set or clear an entry's category",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := ""
		if len(args) == 2 {
			category = args[1]
		}
		return withApp(func(ctx context.Context, a *app) error {
			entry, err := a.blocks.UpdateCategory(ctx, a.owner, args[0], category)
			if err != nil {
				return err
			}
			fmt.Printf("%s category: %q\n", entry.NormalizedURL, entry.Category)
			return nil
		})
	},
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			var (
				entries []domain.BlockEntry
				err     error
			)
			switch {
			case listSearch != "":
				entries, err = a.blocks.Search(ctx, a.owner, listSearch)
			case cmd.Flags().Changed("category"):
				entries, err = a.blocks.FilterByCategory(ctx, a.owner, listCategory)
			default:
				entries, err = a.blocks.List(ctx, a.owner)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(entries)
			}

			fmt.Println("\n=== Block List ===")
			if len(entries) == 0 {
				fmt.Println("(empty)")
			}
			for _, e := range entries {
				fmt.Printf("\n[%s] %s (%s)\n", e.ID, e.NormalizedURL, blockKind(e))
				if e.Category != "" {
					fmt.Printf("  Category: %s\n", e.Category)
				}
				fmt.Printf("  Added: %s\n", e.CreatedAt.Format(time.RFC3339))
				if e.LastAccessed != nil {
					fmt.Printf("  Last blocked: %s ago\n", time.Since(*e.LastAccessed).Round(time.Second))
				}
			}
			fmt.Println("\n==================")
			return nil
		})
	},
}

var blockStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show block list statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			stats := a.blocks.Stats(ctx, a.owner)
			if jsonOutput {
				return printJSON(stats)
			}
			fmt.Printf("Total: %d (permanent %d, session %d)\n", stats.Total, stats.Permanent, stats.Temporary)
			fmt.Printf("Categorized: %d\n", stats.Categorized)
			fmt.Printf("Blocked in the last day: %d\n", stats.RecentlyAccessed)
			return nil
		})
	},
}

var blockCheckCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a URL is blocked right now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			result := a.blocks.IsBlocked(ctx, a.owner, args[0])
			if jsonOutput {
				return printJSON(result)
			}
			if !result.IsBlocked {
				fmt.Printf("%s is not blocked\n", args[0])
				return nil
			}
			msg := usecase.MessageFor(result)
			fmt.Printf("%s\n%s\n", msg.Title, msg.Message)
			if msg.ActionText != "" {
				fmt.Printf("-> %s\n", msg.ActionText)
			}
			return nil
		})
	},
}

var blockImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import block entries from a JSON file",
	Long:  `Reads a JSON array of block entries (as printed by 'block list --json').`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}
		var entries []domain.BlockEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse import file: %w", err)
		}
		return withApp(func(ctx context.Context, a *app) error {
			result, err := a.blocks.Import(ctx, a.owner, entries)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d entries\n", result.Imported)
			for _, msg := range result.Errors {
				fmt.Printf("  skipped: %s\n", msg)
			}
			return nil
		})
	},
}

var blockClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every block entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return errors.New("refusing to clear the block list without --yes")
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.blocks.ClearAll(ctx, a.owner); err != nil {
				return err
			}
			fmt.Println("Block list cleared")
			return nil
		})
	},
}

func init() {
	blockAddCmd.Flags().BoolVarP(&addPermanent, "permanent", "p", false, "Block outside focus sessions too")
	blockAddCmd.Flags().StringVar(&addCategory, "category", "", "Category label")
	blockAddCmd.Flags().StringVar(&addPattern, "pattern", "", "Custom glob pattern (default derived from the URL)")
	blockListCmd.Flags().StringVar(&listSearch, "search", "", "Case-insensitive URL or category search")
	blockListCmd.Flags().StringVar(&listCategory, "category", "", "Exact category filter (empty matches uncategorized)")
	blockClearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm clearing")
	for _, c := range []*cobra.Command{blockListCmd, blockStatsCmd, blockCheckCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	}

	blockCmd.AddCommand(blockAddCmd, blockRemoveCmd, blockToggleCmd, blockCategoryCmd,
		blockListCmd, blockStatsCmd, blockCheckCmd, blockImportCmd, blockClearCmd)
}

func blockKind(e domain.BlockEntry) string {
	if e.IsPermanent {
		return "permanent"
	}
	return "session"
}
