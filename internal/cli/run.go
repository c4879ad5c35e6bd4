package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oleksandrkozlov/preferans/internal/adapters/ws"
	"github.com/oleksandrkozlov/preferans/internal/app/orch"
	"github.com/oleksandrkozlov/preferans/internal/app/session"
	"github.com/oleksandrkozlov/preferans/internal/config"
	"github.com/oleksandrkozlov/preferans/internal/report"
	"github.com/oleksandrkozlov/preferans/internal/scenario"
)

type RunOptions struct {
	*RootOptions
	Binary          string
	Host            string
	Port            int
	NoStagger       bool
	CancelOnFailure bool
	Timeout         time.Duration
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Run a scenario against the server",
		Long: `Start the server binary (or probe an already running server when no binary is
configured), connect the scenario's players and check what each of them receives.
Without a scenario file the built-in three player deal is run.

Example:
  prefharness run --binary ./build/preferans_server
  prefharness run --binary ./build/preferans_server --no-stagger scenarios/deal.yaml
  prefharness run --host 10.0.0.5 --port 9000 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Binary, "binary", "", "server executable, started as <binary> <host> <port>")
	cmd.Flags().StringVar(&opts.Host, "host", "", "server host")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "server port")
	cmd.Flags().BoolVar(&opts.NoStagger, "no-stagger", false, "join all players at once")
	cmd.Flags().BoolVar(&opts.CancelOnFailure, "cancel-on-failure", false, "stop the other players when one fails")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "timeout of every wait step")

	return cmd
}

func runScenario(cmd *cobra.Command, opts *RunOptions, args []string) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	sc := scenario.Default()
	if len(args) == 1 {
		if sc, err = scenario.Load(args[0]); err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
	}

	ocfg, err := opts.orchConfig(cmd, cfg, sc)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		sc.Timeout = opts.Timeout
	} else if sc.Timeout == 0 {
		sc.Timeout = cfg.Harness.Timeout
	}

	log.Info().Str("module", "cli").
		Str("scenario", sc.Name).
		Str("binary", ocfg.Binary).
		Str("endpoint", ws.Endpoint(ocfg.Host, ocfg.Port)).
		Str("policy", ocfg.Policy.String()).
		Bool("staggered", !opts.NoStagger).
		Msg("running scenario")

	res, runErr := scenario.Run(cmd.Context(), orch.New(ocfg), sc, scenario.RunOptions{Unstaggered: opts.NoStagger})
	if err := report.Write(cmd.OutOrStdout(), opts.Format, res); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if runErr != nil {
		return WrapExitError(ExitCommandError, "harness error", runErr)
	}
	if !res.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed: %d of %d clients", sc.Name, res.Failed(), len(res.Clients)))
	}
	return nil
}

// orchConfig layers config file, scenario and flags, in that order.
func (o *RunOptions) orchConfig(cmd *cobra.Command, cfg *config.Config, sc *scenario.Scenario) (orch.Config, error) {
	policy, err := orch.ParseFailurePolicy(cfg.Harness.FailurePolicy)
	if err != nil {
		return orch.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	if o.CancelOnFailure {
		policy = orch.CancelOnFirstFailure
	}

	ocfg := orch.Config{
		Binary:         cfg.Server.Binary,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Args:           cfg.Server.Args,
		StartupTimeout: cfg.Server.StartupTimeout,
		StopGrace:      cfg.Server.StopGrace,
		Policy:         policy,
		SessionOptions: []session.Option{session.WithConnOptions(
			ws.WithHandshakeTimeout(cfg.Harness.HandshakeTimeout),
			ws.WithWriteTimeout(cfg.Harness.WriteTimeout),
			ws.WithReadLimit(cfg.Harness.ReadLimit),
		)},
	}
	if o.Verbose {
		ocfg.ServerStdout = cmd.ErrOrStderr()
		ocfg.ServerStderr = cmd.ErrOrStderr()
	}
	ocfg = sc.Apply(ocfg)

	flags := cmd.Flags()
	if flags.Changed("binary") {
		ocfg.Binary = o.Binary
	}
	if flags.Changed("host") {
		ocfg.Host = o.Host
	}
	if flags.Changed("port") {
		ocfg.Port = o.Port
	}
	if ocfg.Port <= 0 || ocfg.Port > 65535 {
		return orch.Config{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid port %d", ocfg.Port))
	}
	return ocfg, nil
}
