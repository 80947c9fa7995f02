package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talentgrid-hq/conductor/pkg/cli"
	"talentgrid-hq/conductor/pkg/server"
	"talentgrid-hq/conductor/pkg/traffic"
)

var rolloutFlags struct {
	addr    string
	token   string
	timeout time.Duration
	format  string
}

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Inspect and control traffic rollout",
	Long: `Inspect and change the share of traffic a running Conductor sends to the
orchestrator path, through its admin API.

Subcommands:
  status        - Show the current and pending rollout stages and engine health
  set           - Set the orchestrator percentage (0-100)
  force-legacy  - Route all traffic to the legacy path immediately
  release       - Lift force-legacy and resume the configured percentage

The admin token is read from --token or CONDUCTOR_ADMIN_TOKEN.

Examples:
  conductor rollout status --addr http://conductor:8080
  conductor rollout set 25
  conductor rollout force-legacy`,
}

var rolloutStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rollout and engine status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var status server.StatusResponse
		if err := newAdminClient().do(cmd.Context(), http.MethodGet, "/admin/status", nil, &status); err != nil {
			return cli.NewCommandError("rollout status", err)
		}
		return printStatus(cmd.OutOrStdout(), &status)
	},
}

var rolloutSetCmd = &cobra.Command{
	Use:   "set PERCENTAGE",
	Short: "Set the orchestrator traffic percentage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := parsePercentage(args[0])
		if err != nil {
			return err
		}
		var stage traffic.Stage
		body := server.RolloutRequest{Percentage: &pct}
		if err := newAdminClient().do(cmd.Context(), http.MethodPut, "/admin/rollout", body, &stage); err != nil {
			return cli.NewCommandError("rollout set", err)
		}
		return printStage(cmd.OutOrStdout(), &stage)
	},
}

var rolloutForceLegacyCmd = &cobra.Command{
	Use:   "force-legacy",
	Short: "Route all traffic to the legacy path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var stage traffic.Stage
		if err := newAdminClient().do(cmd.Context(), http.MethodPost, "/admin/fallback", nil, &stage); err != nil {
			return cli.NewCommandError("rollout force-legacy", err)
		}
		return printStage(cmd.OutOrStdout(), &stage)
	},
}

var rolloutReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Lift force-legacy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var stage traffic.Stage
		if err := newAdminClient().do(cmd.Context(), http.MethodDelete, "/admin/fallback", nil, &stage); err != nil {
			return cli.NewCommandError("rollout release", err)
		}
		return printStage(cmd.OutOrStdout(), &stage)
	},
}

func init() {
	rootCmd.AddCommand(rolloutCmd)
	rolloutCmd.AddCommand(rolloutStatusCmd, rolloutSetCmd, rolloutForceLegacyCmd, rolloutReleaseCmd)

	pf := rolloutCmd.PersistentFlags()
	pf.StringVar(&rolloutFlags.addr, "addr", "http://127.0.0.1:8080", "Conductor base URL")
	pf.StringVar(&rolloutFlags.token, "token", "", "admin bearer token (default $CONDUCTOR_ADMIN_TOKEN)")
	pf.DurationVar(&rolloutFlags.timeout, "timeout", 10*time.Second, "request timeout")
	pf.StringVar(&rolloutFlags.format, "format", "text", "output format: text, json")
}

func parsePercentage(s string) (float64, error) {
	pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("percentage must be between 0 and 100, got %g", pct)
	}
	return pct, nil
}

// adminClient calls the admin API of a running instance.
type adminClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newAdminClient() *adminClient {
	token := rolloutFlags.token
	if token == "" {
		token = os.Getenv("CONDUCTOR_ADMIN_TOKEN")
	}
	return &adminClient{
		baseURL: strings.TrimRight(rolloutFlags.addr, "/"),
		token:   token,
		client:  &http.Client{Timeout: rolloutFlags.timeout},
	}
}

// do sends body as JSON and decodes a 2xx response into out. Error bodies
// are reported with their code and message.
func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb server.ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Code != "" {
			return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, eb.Error.Code, eb.Error.Message)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printStage(w io.Writer, stage *traffic.Stage) error {
	if rolloutFlags.format == string(cli.FormatJSON) {
		return cli.WriteJSON(w, stage)
	}
	fmt.Fprintf(w, "version:      %d\n", stage.Version)
	fmt.Fprintf(w, "percentage:   %.2f%%\n", stage.EffectivePercentage())
	fmt.Fprintf(w, "force legacy: %t\n", stage.ForceLegacy)
	fmt.Fprintf(w, "source:       %s\n", stage.Source)
	fmt.Fprintf(w, "effective at: %s\n", stage.EffectiveAt.Format(time.RFC3339))
	return nil
}

func printStatus(w io.Writer, status *server.StatusResponse) error {
	if rolloutFlags.format == string(cli.FormatJSON) {
		return cli.WriteJSON(w, status)
	}

	cur := status.Rollout.Current
	fmt.Fprintf(w, "Rollout v%d: %.2f%% to orchestrator", cur.Version, cur.EffectivePercentage())
	if cur.ForceLegacy {
		fmt.Fprint(w, " (forced legacy)")
	}
	fmt.Fprintln(w)
	for _, p := range status.Rollout.Pending {
		fmt.Fprintf(w, "  pending v%d: %.2f%% at %s\n", p.Version, p.EffectivePercentage(), p.EffectiveAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	tbl := cli.NewTable(w, "ENGINE", "STATE", "ENABLED", "WEIGHT", "ERROR RATE", "P95")
	for _, e := range status.Engines {
		tbl.Row(e.Engine, e.State.String(), strconv.FormatBool(e.Enabled),
			fmt.Sprintf("%.2f", e.Weight),
			fmt.Sprintf("%.1f%%", e.Window.ErrorRate*100),
			e.Window.P95.String(),
		)
	}
	return tbl.Flush()
}
