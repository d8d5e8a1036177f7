package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history <type> <id>",
	Short: "Show the audit trail of an entity, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Service.History(context.Background(), args[0], args[1], limit, offset)
		if err != nil {
			return err
		}

		if jsonMode(cmd) {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		return printMarkdown(cmd, tui.HistoryMarkdown(args[0], args[1], entries))
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 0, "Maximum number of entries (0: all)")
	historyCmd.Flags().Int("offset", 0, "Entries to skip")
}
