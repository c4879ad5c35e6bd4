// Package cli wires the harness into the prefharness command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oleksandrkozlov/preferans/internal/config"
	"github.com/oleksandrkozlov/preferans/internal/report"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // text or json; empty means the configured report format
	Verbose    bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prefharness",
		Short: "Conformance harness for the Preferans game server",
		Long: `Start a Preferans server, connect simulated players over WebSocket and check
the ordered protocol events each of them observes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "" && !slices.Contains(report.Formats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, report.Formats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging and server output on stderr")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))

	return cmd
}

// loadConfig reads the configuration and applies its logging section.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := config.ApplyLogging(cfg.Log, cmd.ErrOrStderr()); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log config", err)
	}
	if o.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if o.Format == "" {
		o.Format = cfg.Harness.Report
	}
	if !slices.Contains(report.Formats, o.Format) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid report format %q in config", o.Format))
	}
	return cfg, nil
}
