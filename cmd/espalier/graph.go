package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph <spec>",
	Short: "Export the state machine as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of a specification. With --entity the
current state and the states the entity has visited are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		spec, err := app.Service.Specification(args[0])
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if id, _ := cmd.Flags().GetString("entity"); id != "" {
			ctx := context.Background()
			state, err := app.Service.Query(ctx, spec.ID, id)
			if err != nil && !errors.Is(err, domain.ErrEntityNotFound) {
				return err
			}
			if state != nil {
				history, err := app.Service.History(ctx, spec.ID, id, 0, 0)
				if err != nil {
					return err
				}
				overlay = graph.OverlayFor(state, history)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(spec, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("entity", "", "Highlight the path of this entity id")
}
