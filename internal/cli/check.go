package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/epar/internal/engine"
	"github.com/roach88/epar/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Database string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the stored history invariants",
		Long: `Verify that every entity has at most one open version, that is_current
matches the open version and that no two versions overlap.

Exit codes:
  0 - History is consistent
  1 - A violation was found
  2 - Command error (database not found, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	out := formatter(opts.RootOptions, cmd)
	err = st.CheckInvariants(context.Background())
	var ce *engine.ConsistencyError
	switch {
	case errors.As(err, &ce):
		_ = out.Error(string(ce.Code), ce.Error(), ce.Details)
		return WrapExitError(ExitFailure, "history is inconsistent", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}
	return out.Success(map[string]bool{"consistent": true}, "History is consistent.\n")
}
