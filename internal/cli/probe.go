package cli

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oleksandrkozlov/preferans/internal/app/supervisor"
	"github.com/oleksandrkozlov/preferans/internal/report"
)

type ProbeOptions struct {
	*RootOptions
	Timeout time.Duration
}

type probeResult struct {
	Addr      string `json:"addr"`
	Listening bool   `json:"listening"`
	Error     string `json:"error,omitempty"`
}

func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe <host> <port>",
		Short: "Check whether a server accepts TCP connections",
		Long: `Try to connect to host:port. With --timeout the check is repeated until the
port accepts a connection or the timeout passes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return probe(cmd, opts, args[0], args[1])
		},
	}
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "keep probing for this long")
	return cmd
}

func probe(cmd *cobra.Command, opts *ProbeOptions, host, portArg string) error {
	port, err := strconv.Atoi(portArg)
	if err != nil || port <= 0 || port > 65535 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid port %q", portArg))
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	res := probeResult{Addr: addr}
	if opts.Timeout > 0 {
		err = supervisor.WaitForPort(cmd.Context(), addr, opts.Timeout)
		res.Listening = err == nil
	} else {
		res.Listening = supervisor.Probe(cmd.Context(), addr, supervisor.DefaultDialTimeout)
		if !res.Listening {
			err = supervisor.ErrPortClosed
		}
	}
	if err != nil {
		res.Error = err.Error()
	}

	out := cmd.OutOrStdout()
	if opts.Format == report.FormatJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else if res.Listening {
		fmt.Fprintf(out, "%s is listening\n", addr)
	} else {
		fmt.Fprintf(out, "%s is not listening: %s\n", addr, res.Error)
	}

	if !res.Listening {
		return WrapExitError(ExitFailure, "probe failed", err)
	}
	return nil
}
