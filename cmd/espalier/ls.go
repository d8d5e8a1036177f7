package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/domain"
)

var lsCmd = &cobra.Command{
	Use:   "ls <type>",
	Short: "List the entities of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter domain.Filter
		filter.State, _ = cmd.Flags().GetString("state")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		filter.Offset, _ = cmd.Flags().GetInt("offset")

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		states, err := app.Service.List(context.Background(), args[0], filter)
		if err != nil {
			return err
		}

		if jsonMode(cmd) {
			return printJSON(cmd.OutOrStdout(), states)
		}
		return printMarkdown(cmd, tui.EntitiesMarkdown(args[0], states))
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().String("state", "", "Only entities in this state")
	lsCmd.Flags().Int("limit", 0, "Maximum number of entities (0: all)")
	lsCmd.Flags().Int("offset", 0, "Entities to skip")
}
