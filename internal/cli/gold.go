package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/epar/internal/gold"
	"github.com/roach88/epar/internal/store"
)

// GoldOptions holds flags for the gold command.
type GoldOptions struct {
	*RootOptions
	Database string
}

// NewGoldCommand creates the gold command.
func NewGoldCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GoldOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gold",
		Short: "Project the stored history into the Gold star schema",
		Long: `Build dim_medicine, fact_regulatory_history and
bridge_medicine_features from the stored version history.

Use --format json for the tables themselves; text output summarizes them.

Examples:
  epar gold --db ./epar.db --format json > gold.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGold(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runGold(opts *GoldOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	versions, err := st.AllVersions(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read versions", err)
	}

	p := gold.Project(versions)
	text := fmt.Sprintf("dim_medicine:             %d rows\nfact_regulatory_history:  %d rows\nbridge_medicine_features: %d rows\n",
		len(p.Medicines), len(p.History), len(p.Features))
	return formatter(opts.RootOptions, cmd).Success(p, text)
}
