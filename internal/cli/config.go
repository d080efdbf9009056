package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/epar/internal/config"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	Config string
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate a configuration file and print the effective configuration",
		Long: `Unify a CUE configuration file with the built-in schema and print the
result, defaults included. Without --config the defaults are printed.

Examples:
  epar config --config epar.cue
  epar config --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE configuration file")

	return cmd
}

func runConfig(opts *ConfigOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	text, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode configuration", err)
	}
	return formatter(opts.RootOptions, cmd).Success(cfg, string(text)+"\n")
}
