package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/epar/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List committed runs",
		Long: `List the run ledger: one entry per committed run with its counters.

Examples:
  epar runs --db ./epar.db
  epar runs --db ./epar.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.Runs(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	return formatter(opts.RootOptions, cmd).Success(runs, runsText(runs))
}

func runsText(runs []store.RunInfo) string {
	if len(runs) == 0 {
		return "No runs committed.\n"
	}
	var b strings.Builder
	for _, r := range runs {
		s := r.Stats
		fmt.Fprintf(&b, "%s  +%d ~%d -%d =%d  quarantined=%d  match=%.2f  %s\n",
			r.RunAt.Format(time.RFC3339), s.Inserts, s.Updates, s.Closures, s.NoOps,
			s.Quarantined, s.MatchRate, r.RunID)
	}
	return b.String()
}
