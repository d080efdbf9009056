package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/epar/internal/config"
	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/pipeline"
	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/report"
	"github.com/roach88/epar/internal/source"
	"github.com/roach88/epar/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Rows        string
	Registry    string
	Config      string
	RunAt       string
	MetricsFile string
	DryRun      bool
}

// Run outcomes.
const (
	OutcomeCommitted      = "committed"
	OutcomeDryRun         = "dry_run"
	OutcomeAlreadyApplied = "already_applied"
)

// RunSummary is the run command's output.
type RunSummary struct {
	Outcome     string          `json:"outcome"`
	RunID       string          `json:"run_id,omitempty"`
	Stats       report.RunStats `json:"stats"`
	Quarantined []string        `json:"quarantined"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Historize one daily snapshot",
		Long: `Normalize a validated snapshot, resolve holders against the registry,
classify every entity against the stored history and commit the run.

The run timestamp is required and keys the run: re-running the same
timestamp with the same snapshot is a no-op, with a different snapshot a
consistency violation. A consistency violation aborts the run before
anything is written. --dry-run prints the planned counters only; stats
and metrics are reported for committed runs.

Exit codes:
  0 - Run committed, planned (--dry-run) or already applied
  1 - Consistency violation
  2 - Command error (bad flags, unreadable input, bad config)

Examples:
  epar run --db ./epar.db --rows snapshot.yaml --registry spor.yaml --run-at 2024-05-01
  epar run --db ./epar.db --rows snapshot.json --run-at 2024-05-02T06:00:00Z --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Rows, "rows", "", "snapshot file, .yaml or .json (required)")
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "SPOR registry export, .yaml or .json")
	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE configuration file")
	cmd.Flags().StringVar(&opts.RunAt, "run-at", "", "run timestamp, RFC 3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan without committing")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("rows")
	_ = cmd.MarkFlagRequired("run-at")

	return cmd
}

// ParseRunAt accepts RFC 3339 or a bare date (midnight UTC).
func ParseRunAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run timestamp %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func runSnapshot(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := formatter(opts.RootOptions, cmd)

	runAt, err := ParseRunAt(opts.RunAt)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --run-at", err)
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	rows, err := source.LoadRows(opts.Rows)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	entries := []record.RegistryEntry{}
	if opts.Registry != "" {
		if entries, err = source.LoadRegistry(opts.Registry); err != nil {
			return WrapExitError(ExitCommandError, "failed to read registry", err)
		}
	}
	logger.Info("inputs loaded", "rows", len(rows), "registry", len(entries), "run_at", runAt.Format(time.RFC3339))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Cancellation is honoured up to the commit; the commit itself is one
	// transaction.
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	reg := prometheus.NewRegistry()
	reporter := report.Multi{report.NewSlogReporter(logger), report.NewMetrics(reg)}

	p, err := pipeline.New(cfg, pipeline.WithReporter(reporter), pipeline.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	prior, err := st.LoadCurrent(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load current versions", err)
	}

	res, err := p.Run(ctx, pipeline.Input{Rows: rows, Registry: entries, Prior: prior, RunAt: runAt})
	if err != nil {
		return runFailure(out, err)
	}

	summary := RunSummary{Stats: res.Stats, Quarantined: make([]string, 0, len(res.Quarantined))}
	for _, q := range res.Quarantined {
		summary.Quarantined = append(summary.Quarantined, fmt.Sprintf("%s: %s", q.Row.SourceID, q.Kind))
	}

	if opts.DryRun {
		summary.Outcome = OutcomeDryRun
		logger.Info("run planned, nothing committed",
			"run_at", runAt.Format(time.RFC3339),
			"inserts", res.Stats.Inserts,
			"updates", res.Stats.Updates,
			"closures", res.Stats.Closures,
		)
		return out.Success(summary, summaryText(summary))
	}

	info, err := st.Commit(ctx, store.Run{Plan: res.Plan, Quarantined: res.Quarantined, Stats: res.Stats})
	switch {
	case errors.Is(err, engine.ErrRunAlreadyApplied) && !res.Plan.Empty():
		return runFailure(out, engine.NewReplayMismatchError(runAt.Format(time.RFC3339), res.Plan.Counts))
	case errors.Is(err, engine.ErrRunAlreadyApplied):
		logger.Info("run already applied", "run_at", runAt.Format(time.RFC3339))
		summary.Outcome = OutcomeAlreadyApplied
		return out.Success(summary, summaryText(summary))
	case err != nil:
		return runFailure(out, err)
	}

	// Only committed runs reach the reporters and the metrics textfile.
	reporter.RunCompleted(res.Stats)
	summary.Outcome = OutcomeCommitted
	summary.RunID = info.RunID

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	return out.Success(summary, summaryText(summary))
}

// runFailure maps a pipeline or commit error to an exit code.
func runFailure(out *OutputFormatter, err error) error {
	var ce *engine.ConsistencyError
	if errors.As(err, &ce) {
		_ = out.Error(string(ce.Code), ce.Message, ce.Details)
		return WrapExitError(ExitFailure, "consistency violation", err)
	}
	if errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "run cancelled before commit", err)
	}
	return WrapExitError(ExitCommandError, "run failed", err)
}

func summaryText(s RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s", s.Stats.RunAt.Format(time.RFC3339), s.Outcome)
	if s.RunID != "" {
		fmt.Fprintf(&b, " (%s)", s.RunID)
	}
	if s.Outcome == OutcomeDryRun {
		b.WriteString(", planned changes only")
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  rows:          %d\n", s.Stats.Rows)
	fmt.Fprintf(&b, "  inserts:       %d\n", s.Stats.Inserts)
	fmt.Fprintf(&b, "  updates:       %d\n", s.Stats.Updates)
	fmt.Fprintf(&b, "  closures:      %d\n", s.Stats.Closures)
	fmt.Fprintf(&b, "  unchanged:     %d\n", s.Stats.NoOps)
	fmt.Fprintf(&b, "  quarantined:   %d\n", s.Stats.Quarantined)
	fmt.Fprintf(&b, "  atc anomalies: %d\n", s.Stats.ATCAnomalies)
	fmt.Fprintf(&b, "  match rate:    %.2f%% (%d/%d)\n",
		100*s.Stats.MatchRate, s.Stats.Matched, s.Stats.Matched+s.Stats.Unmatched)
	for _, q := range s.Quarantined {
		fmt.Fprintf(&b, "  quarantined %s\n", q)
	}
	return b.String()
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
