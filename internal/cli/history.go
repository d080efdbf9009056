package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/epar/internal/record"
	"github.com/roach88/epar/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Family   bool
}

// HistoryResult is the history command's output.
type HistoryResult struct {
	Query    string                 `json:"query"`
	Versions []record.VersionRecord `json:"versions"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <source-id|entity-id|family-id>",
		Short: "Show the version history of an entity or family",
		Long: `Show every stored version of one entity, oldest first.

The argument may be a source id (EMEA/H/C/001234) or an entity id. With
--family, the argument is a family id and every entity of the procedure
family is shown.

Examples:
  epar history --db ./epar.db EMEA/H/C/001234
  epar history --db ./epar.db --family 001234 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Family, "family", false, "treat the argument as a family id")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// resolveEntityID accepts an entity id as-is and derives one from
// anything else.
func resolveEntityID(arg string) string {
	if _, err := uuid.Parse(arg); err == nil {
		return strings.ToLower(arg)
	}
	return record.EntityID(strings.TrimSpace(arg))
}

func runHistory(opts *HistoryOptions, arg string, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var versions []record.VersionRecord
	if opts.Family {
		versions, err = st.Family(ctx, arg)
	} else {
		versions, err = st.History(ctx, resolveEntityID(arg))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	result := HistoryResult{Query: arg, Versions: versions}
	return formatter(opts.RootOptions, cmd).Success(result, historyText(result))
}

func historyText(r HistoryResult) string {
	if len(r.Versions) == 0 {
		return fmt.Sprintf("No versions found for %s.\n", r.Query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "History for %s (%d versions)\n", r.Query, len(r.Versions))
	for _, v := range r.Versions {
		to := "open"
		if v.ValidTo != nil {
			to = v.ValidTo.Format(time.RFC3339)
		}
		org := "-"
		if v.OrganizationID != nil {
			org = *v.OrganizationID
		}
		fmt.Fprintf(&b, "  %s  %s .. %s  %-26s org=%s hash=%s\n",
			v.SourceID, v.ValidFrom.Format(time.RFC3339), to, v.Status, org, short(v.RowHash))
	}
	return b.String()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
