package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talentgrid-hq/conductor/pkg/cli"
	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/events"
	"talentgrid-hq/conductor/pkg/events/export"
	"talentgrid-hq/conductor/pkg/events/retention"
	"talentgrid-hq/conductor/pkg/events/storage"
)

var eventsFlags struct {
	timeRange string
	since     time.Duration
	kind      string
	engine    string
	requestID string
	status    string
	limit     int
	offset    int
	order     string
	format    string
	output    string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the event store",
	Long: `Query, export and prune the structured events recorded by Conductor:
one match event per request, attempt events per engine call, breaker
transitions and rollout changes.

Subcommands:
  query  - Query events with filters
  prune  - Apply the retention policy once

Examples:
  # Breaker transitions in the last hour
  conductor events query --kind transition --since 1h

  # Every event of one request
  conductor events query --request-id 6f1c... --order asc

  # Export a day of match events to CSV
  conductor events query --kind match --time-range "2026-10-01T00:00:00Z/2026-10-02T00:00:00Z" --format csv -o matches.csv`,
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query events",
	Long: `Query events with various filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-10-01T00:00:00Z/2026-10-02T00:00:00Z"`,
	Args: cobra.NoArgs,
	RunE: queryEvents,
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy once",
	Args:  cobra.NoArgs,
	RunE:  pruneEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsQueryCmd, eventsPruneCmd)

	f := eventsQueryCmd.Flags()
	f.StringVar(&eventsFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	f.DurationVar(&eventsFlags.since, "since", 0, "only events newer than this (e.g. 1h)")
	f.StringVar(&eventsFlags.kind, "kind", "", "filter by kind: match, attempt, transition, rollout")
	f.StringVar(&eventsFlags.engine, "engine", "", "filter by engine id")
	f.StringVar(&eventsFlags.requestID, "request-id", "", "filter by request id")
	f.StringVar(&eventsFlags.status, "status", "", "filter by status (success, cache_hit, error, timeout)")
	f.IntVar(&eventsFlags.limit, "limit", 100, "max results")
	f.IntVar(&eventsFlags.offset, "offset", 0, "pagination offset")
	f.StringVar(&eventsFlags.order, "order", "desc", "sort order by time: asc, desc")
	f.StringVar(&eventsFlags.format, "format", "text", "output format: text, json, csv")
	f.StringVarP(&eventsFlags.output, "output", "o", "", "output file (default: stdout)")
}

// openEventStorage opens the configured event store for offline access.
func openEventStorage() (events.Storage, *config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError(cfgFile, err)
	}
	if cfg.Events.Backend != "sqlite" {
		return nil, nil, fmt.Errorf("events backend %q is not persistent; only sqlite can be queried offline", cfg.Events.Backend)
	}
	s, err := storage.NewSQLiteStorage(eventStorageConfig(cfg.Events.SQLite))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event storage: %w", err)
	}
	return s, cfg, nil
}

// buildQuery turns the query flags into an events.Query.
func buildQuery(now time.Time) (*events.Query, error) {
	q := &events.Query{
		Kind:      events.Kind(eventsFlags.kind),
		Engine:    eventsFlags.engine,
		RequestID: eventsFlags.requestID,
		Status:    eventsFlags.status,
		Limit:     eventsFlags.limit,
		Offset:    eventsFlags.offset,
	}

	switch q.Kind {
	case "", events.KindMatch, events.KindAttempt, events.KindTransition, events.KindRollout:
	default:
		return nil, fmt.Errorf("unknown event kind %q", eventsFlags.kind)
	}

	switch eventsFlags.order {
	case "asc", "desc":
		q.SortOrder = eventsFlags.order
	default:
		return nil, fmt.Errorf("invalid sort order %q (expected asc or desc)", eventsFlags.order)
	}

	if eventsFlags.timeRange != "" && eventsFlags.since > 0 {
		return nil, fmt.Errorf("--time-range and --since are mutually exclusive")
	}
	if eventsFlags.since > 0 {
		start := now.Add(-eventsFlags.since)
		q.StartTime = &start
	}
	if eventsFlags.timeRange != "" {
		parts := strings.Split(eventsFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}
		start, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		end, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("time range end is before start")
		}
		q.StartTime = &start
		q.EndTime = &end
	}
	return q, nil
}

func queryEvents(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(eventsFlags.format, cli.FormatText, cli.FormatJSON, cli.FormatCSV)
	if err != nil {
		return err
	}
	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}

	store, _, err := openEventStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	evs, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("events query", err)
	}

	out := cmd.OutOrStdout()
	if eventsFlags.output != "" {
		f, err := os.Create(eventsFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case cli.FormatJSON:
		err = export.NewJSONExporter(true).Export(ctx, evs, out)
	case cli.FormatCSV:
		err = export.NewCSVExporter(true).Export(ctx, evs, out)
	default:
		err = printEvents(out, evs)
	}
	if err != nil {
		return cli.NewCommandError("events query", err)
	}

	if eventsFlags.output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d events written to %s\n", len(evs), eventsFlags.output)
	}
	return nil
}

func printEvents(w io.Writer, evs []*events.Event) error {
	if len(evs) == 0 {
		fmt.Fprintln(w, "No events found")
		return nil
	}
	tbl := cli.NewTable(w, "TIME", "KIND", "REQUEST", "ENGINE", "STATUS", "DETAIL")
	for _, e := range evs {
		tbl.Row(e.Time.Format(time.RFC3339), string(e.Kind), e.RequestID, e.Engine, e.Status, eventDetail(e))
	}
	if err := tbl.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d events\n", len(evs))
	return nil
}

// eventDetail summarizes the kind-specific fields of an event.
func eventDetail(e *events.Event) string {
	switch e.Kind {
	case events.KindMatch:
		if e.Error != "" {
			return fmt.Sprintf("path=%s error=%s", e.Path, e.Error)
		}
		return fmt.Sprintf("path=%s mode=%s score=%.1f tried=%d latency=%s", e.Path, e.Mode, e.Score, e.Tried, e.Latency)
	case events.KindAttempt:
		if e.Error != "" {
			return fmt.Sprintf("%s: %s", e.ErrorKind, e.Error)
		}
		return fmt.Sprintf("score=%.1f latency=%s", e.Score, e.Latency)
	case events.KindTransition, events.KindRollout:
		return fmt.Sprintf("%s -> %s (%s)", e.From, e.To, e.Reason)
	default:
		return e.Reason
	}
}

func pruneEvents(cmd *cobra.Command, args []string) error {
	store, cfg, err := openEventStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := retention.NewPruner(store, retentionConfig(cfg.Events.Retention)).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("events prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d events pruned\n", deleted)
	return nil
}
