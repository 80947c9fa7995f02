package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"talentgrid-hq/conductor/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor - intelligent matching orchestrator",
	Long: `Conductor sits in front of several candidate-to-job scoring engines and
decides, per request, which engine (or combination of engines) serves it.

It provides:
  - Rule-based engine selection with fallback chains and hybrid consensus
  - Per-engine health windows and circuit breakers
  - Sticky percentage rollout between the legacy path and the orchestrator
  - Result caching, structured events, Prometheus metrics and OTel traces`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "conductor.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
