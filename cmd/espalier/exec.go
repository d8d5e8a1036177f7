package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/domain"
)

var execCmd = &cobra.Command{
	Use:   "exec <type> <id> <event>",
	Short: "Send an event to an entity",
	Long: `Executes a command against an entity. The entity is created at the initial state
of its specification on its first command. Exactly one audit entry is written on success.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("data")
		data, err := parseData(raw)
		if err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.Service.Execute(context.Background(), domain.Command{
			EntityType: args[0],
			EntityID:   args[1],
			Event:      args[2],
			Data:       data,
			Actor:      actor,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", domain.KindOf(err), err)
		}

		if jsonMode(cmd) {
			return printJSON(cmd.OutOrStdout(), struct {
				*domain.TransitionResult
				Changes domain.Context `json:"changes"`
			}{res, res.Changes()})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Transition(res, colorProfile(cmd)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().String("data", "", "Command data as a JSON object")
	execCmd.Flags().String("actor", "", "Who issues the command (recorded in the audit entry)")
}
