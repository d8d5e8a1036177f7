package main

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/pkg/adapters/mcp"
	"github.com/aretw0/espalier/pkg/policy"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes espalier as MCP tools (execute, query, history, can_transition, list_specs)
so AI agents can drive entities.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP (--sse address). Ideal for remote agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sseAddr, _ := cmd.Flags().GetString("sse")
		baseURL, _ := cmd.Flags().GetString("base-url")
		policyFile, _ := cmd.Flags().GetString("policy")
		if policyFile == "" {
			policyFile = cfg.Policy
		}

		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		opts := []mcp.Option{mcp.WithLogger(app.Logger)}
		if policyFile != "" {
			rules, err := policy.LoadFile(policyFile)
			if err != nil {
				return err
			}
			opts = append(opts, mcp.WithPolicy(rules))
		}
		srv := mcp.NewServer(app.Service, opts...)

		if sseAddr == "" {
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			app.Logger.Info("Starting espalier MCP Server (Stdio)")
			return srv.ServeStdio()
		}

		if baseURL == "" {
			baseURL = defaultBaseURL(sseAddr)
		}
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()
		return srv.ServeSSE(sigCtx, sseAddr, baseURL)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("sse", "", "Serve over SSE on this address instead of stdio (e.g. :8081)")
	mcpCmd.Flags().String("base-url", "", "Public base URL announced to SSE clients")
	mcpCmd.Flags().String("policy", "", "YAML policy file (default: allow everything)")
}

func defaultBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
