package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/validator"
	"github.com/aretw0/espalier/pkg/adapters/specfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check specifications for consistency",
	Long: `Loads each specification file (default: every document in --specs) and reports
unknown targets, missing guards and actions, duplicates and unreachable states.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			var err error
			if files, err = specFiles(cfg.Specs); err != nil {
				return err
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no specifications found in %s", cfg.Specs)
		}

		out := cmd.OutOrStdout()
		loader := specfile.NewLoader()
		failed := 0
		for _, file := range files {
			spec, err := loader.LoadFile(file)
			if err == nil {
				var report *validator.Report
				if report, err = validator.Validate(spec); err == nil {
					fmt.Fprintf(out, "✅ %s: %s (%d states)\n", file, spec.ID, len(spec.States))
					if len(report.Unreachable) > 0 {
						fmt.Fprintf(out, "   ⚠️  unreachable: %s\n", strings.Join(report.Unreachable, ", "))
					}
					continue
				}
			}
			failed++
			fmt.Fprintf(out, "❌ %s: %v\n", file, err)
		}

		if failed > 0 {
			return errors.New("validation failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func specFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
