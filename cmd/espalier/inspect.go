package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/tui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <type> <id>",
	Short: "Show the current state and context of an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		state, err := app.Service.Query(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}

		if jsonMode(cmd) {
			return printJSON(cmd.OutOrStdout(), state)
		}
		return printMarkdown(cmd, tui.EntityMarkdown(state))
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
