package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/tui"
)

var canCmd = &cobra.Command{
	Use:   "can <type> <id> <event>",
	Short: "Dry-run an event without executing actions or persisting",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("data")
		data, err := parseData(raw)
		if err != nil {
			return err
		}

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		verdict, err := app.Service.CanTransition(context.Background(), args[0], args[1], args[2], data)
		if err != nil {
			return err
		}

		if jsonMode(cmd) {
			return printJSON(cmd.OutOrStdout(), verdict)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Verdict(verdict, colorProfile(cmd)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(canCmd)
	canCmd.Flags().String("data", "", "Command data as a JSON object")
}
