package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/presentation/tui"
	httpadapter "github.com/aretw0/espalier/pkg/adapters/http"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/aretw0/espalier/pkg/policy"
	"github.com/aretw0/espalier/pkg/ports"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the JSON API over HTTP and Prometheus metrics on a separate listener.
Entity changes are streamed to subscribers as Server-Sent Events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("metrics-addr") {
			cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
		}
		if flags.Changed("policy") {
			cfg.Policy, _ = flags.GetString("policy")
		}
		watch, _ := flags.GetBool("watch")

		var rules ports.PolicyProvider = policy.AllowAll()
		if cfg.Policy != "" {
			loaded, err := policy.LoadFile(cfg.Policy)
			if err != nil {
				return err
			}
			rules = loaded
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := observability.NewMetrics(reg)

		logger, err := cli.NewLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		streams := httpadapter.NewStreamManager(logger)

		app, err := openApp(
			cli.WithLogger(logger),
			cli.WithHooks(metrics.Hooks()),
			cli.WithHooks(streams.Hooks()),
		)
		if err != nil {
			return err
		}
		defer app.Close()

		api := &http.Server{
			Addr: cfg.Addr,
			Handler: httpadapter.NewHandler(app.Service,
				httpadapter.WithPolicy(rules),
				httpadapter.WithStreams(streams),
				httpadapter.WithLogger(logger),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		g, ctx := errgroup.WithContext(sigCtx)

		out := cmd.OutOrStdout()
		if out == os.Stdout && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(out, colorProfile(cmd))
		}
		fmt.Fprintf(out, "Starting espalier API on %s (metrics on %s)\n", cfg.Addr, cfg.MetricsAddr)
		fmt.Fprintf(out, "Serving %d specifications from: %s\n", len(app.Registry.All()), cfg.Specs)

		for _, srv := range []*http.Server{api, metricsSrv} {
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen %s: %w", srv.Addr, err)
				}
				return nil
			})
		}
		if watch {
			w := &cli.Watcher{Source: app.Source, Registry: app.Registry, Logger: logger}
			g.Go(func() error { return w.Run(ctx) })
		}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(api.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
		})

		err = g.Wait()
		if sig := sigCtx.Signal(); sig != nil {
			fmt.Fprintf(out, "\nStopped on signal %v\n", sig)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "API listen address")
	serveCmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics listen address")
	serveCmd.Flags().String("policy", "", "YAML policy file (default: allow everything)")
	serveCmd.Flags().Bool("watch", false, "Reload specifications when their files change")
}
