package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/config"
	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/domain"
)

// cfg is resolved before every command: environment first, then flags.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "espalier",
	Short: "Espalier drives entities through declarative state machines",
	Long: `Espalier loads entity lifecycle specifications from YAML files and executes
commands against entities, persisting every transition with an audit entry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("dir") {
			loaded.Dir, _ = flags.GetString("dir")
		}
		if flags.Changed("specs") {
			loaded.Specs, _ = flags.GetString("specs")
		}
		if flags.Changed("store") {
			loaded.Store, _ = flags.GetString("store")
		}
		if flags.Changed("log-level") {
			loaded.LogLevel, _ = flags.GetString("log-level")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".espalier", "Working directory of the file and sqlite stores")
	rootCmd.PersistentFlags().String("specs", "specs", "Directory containing the YAML specifications")
	rootCmd.PersistentFlags().String("store", config.StoreFile, "Storage backend (memory, file, sqlite, redis)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Print machine-readable JSON")
}

func openApp(opts ...cli.Option) (*cli.App, error) {
	return cli.NewApp(cfg, opts...)
}

// parseData decodes the --data flag. An empty flag yields nil.
func parseData(raw string) (domain.Context, error) {
	if raw == "" {
		return nil, nil
	}
	var data domain.Context
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("invalid --data: %w", err)
	}
	return data, nil
}

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printMarkdown renders through glamour when stdout is a terminal.
func printMarkdown(cmd *cobra.Command, markdown string) error {
	render := tui.NewRenderer(cmd.OutOrStdout() == os.Stdout && tui.IsTerminal(os.Stdout))
	out, err := render(markdown)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func colorProfile(cmd *cobra.Command) termenv.Profile {
	if cmd.OutOrStdout() != os.Stdout {
		return termenv.Ascii
	}
	return tui.Profile(os.Stdout)
}
