package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"talentgrid-hq/conductor/pkg/cli"
	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/enginefactory"
	"talentgrid-hq/conductor/pkg/registry"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate a configuration file",
	Long: `Load a configuration file the way "conductor run" does and report every
problem without starting the server.

Checks include YAML syntax and unknown keys, field ranges, environment
overrides, the engine catalogue (duplicate ids, fallback references,
baseline marker) and engine endpoint URLs.

Examples:
  conductor validate-config --config conductor.yaml
  conductor validate-config --config conductor.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validationReport is the outcome of validate-config.
type validationReport struct {
	Path     string          `json:"path"`
	Valid    bool            `json:"valid"`
	Errors   []string        `json:"errors,omitempty"`
	Engines  []engineSummary `json:"engines,omitempty"`
	Rollout  float64         `json:"rollout_percentage"`
	Legacy   string          `json:"legacy_engine,omitempty"`
	Baseline string          `json:"baseline,omitempty"`
}

type engineSummary struct {
	ID        string   `json:"id"`
	Enabled   bool     `json:"enabled"`
	Weight    float64  `json:"weight"`
	Timeout   string   `json:"timeout"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}

	report := checkConfig(cfgFile)

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.WriteJSON(out, report); err != nil {
			return err
		}
	} else {
		printValidation(out, report)
	}

	if !report.Valid {
		return cli.NewConfigError(cfgFile, fmt.Errorf("%d problem(s) found", len(report.Errors)))
	}
	return nil
}

// checkConfig runs every load-time check against the file at path.
func checkConfig(path string) *validationReport {
	report := &validationReport{Path: path}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		report.Errors = append(report.Errors, flatten(err)...)
		return report
	}

	reg, err := registry.Load(enginefactory.Definitions(cfg.Engines))
	if err != nil {
		report.Errors = append(report.Errors, flatten(err)...)
	}
	for _, e := range cfg.Engines {
		if _, err := enginefactory.NewEngine(e); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if reg != nil {
		if b, err := reg.Baseline(); err == nil {
			report.Baseline = b.ID
		}
	}
	for _, e := range cfg.Engines {
		report.Engines = append(report.Engines, engineSummary{
			ID:        e.ID,
			Enabled:   e.IsEnabled(),
			Weight:    e.WeightValue(),
			Timeout:   e.Timeout.String(),
			Fallbacks: e.Fallbacks,
		})
	}
	report.Rollout = cfg.Rollout.Percentage
	report.Legacy = cfg.Legacy.Engine
	report.Valid = len(report.Errors) == 0
	return report
}

// flatten splits validation and joined errors into one message each. Joins
// are split first so a validation error inside one does not hide its
// siblings.
func flatten(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	var verr config.ValidationError
	if errors.As(err, &verr) && len(verr.Errors) > 0 {
		out := make([]string, len(verr.Errors))
		for i, fe := range verr.Errors {
			out[i] = fe.Error()
		}
		return out
	}
	return []string{err.Error()}
}

func printValidation(w io.Writer, r *validationReport) {
	if !r.Valid {
		fmt.Fprintf(w, "✗ %s is invalid\n", r.Path)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
		return
	}

	fmt.Fprintf(w, "✓ %s is valid\n\n", r.Path)
	tbl := cli.NewTable(w, "ENGINE", "ENABLED", "WEIGHT", "TIMEOUT", "FALLBACKS")
	for _, e := range r.Engines {
		tbl.Row(e.ID, fmt.Sprint(e.Enabled), fmt.Sprintf("%.2f", e.Weight), e.Timeout, fmt.Sprint(e.Fallbacks))
	}
	_ = tbl.Flush()
	fmt.Fprintf(w, "\nbaseline: %s\n", r.Baseline)
	if r.Legacy != "" {
		fmt.Fprintf(w, "legacy:   %s\n", r.Legacy)
	}
	fmt.Fprintf(w, "rollout:  %.1f%%\n", r.Rollout)
}
