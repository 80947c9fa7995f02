package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"talentgrid-hq/conductor/pkg/cli"
	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Conductor server",
	Long: `Start the Conductor server with the specified configuration.

The server listens on the configured address, accepts match requests on
POST /v1/match and exposes the admin, health and metrics endpoints.

Examples:
  # Start with default config
  conductor run

  # Start with custom config
  conductor run --config /etc/conductor/conductor.yaml

  # Override listen address
  conductor run --listen 0.0.0.0:8080

  # Validate config without starting server
  conductor run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Install(loggingConfig(cfg.Telemetry.Logging)); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	a, err := buildApp(ctx, cfgFile, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	printBanner(out, cfg)

	if err := a.Run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	slog.Info("conductor stopped")
	return nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Conductor %s\n", Version)
	fmt.Fprintf(w, "  listen:   %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(w, "  engines:  %d\n", len(cfg.Engines))
	fmt.Fprintf(w, "  rollout:  %.1f%%\n", cfg.Rollout.Percentage)
	if cfg.Legacy.Engine != "" {
		fmt.Fprintf(w, "  legacy:   %s\n", cfg.Legacy.Engine)
	}
	fmt.Fprintf(w, "  cache:    %s\n", cfg.Cache.Backend)
	if cfg.Events.IsEnabled() {
		fmt.Fprintf(w, "  events:   %s\n", cfg.Events.Backend)
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		fmt.Fprintf(w, "  metrics:  %s\n", cfg.Telemetry.Metrics.Path)
	}
	if cfg.Telemetry.Tracing.Enabled {
		fmt.Fprintf(w, "  tracing:  %s\n", cfg.Telemetry.Tracing.Endpoint)
	}
}
