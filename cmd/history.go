package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/history"
	"github.com/BioHazard786/huddle/internal/ui"
)

var flagClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past room sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagClear {
			if err := history.Clear(); err != nil {
				return err
			}
			ui.PrintSuccess("History cleared")
			return nil
		}

		entries, err := history.Load()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			ui.PrintInfo("No sessions yet")
			return nil
		}
		fmt.Println()
		ui.RenderHistory(entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&flagClear, "clear", false, "Delete all recorded sessions")
}
