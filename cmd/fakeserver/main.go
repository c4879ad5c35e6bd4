package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oleksandrkozlov/preferans/internal/adapters/fakeserver"
	"github.com/oleksandrkozlov/preferans/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	config.InitLogger(os.Stderr)

	code := fakeserver.ExitOK
	cfg := fakeserver.Config{Mode: gin.ReleaseMode}
	var verbose bool

	cmd := &cobra.Command{
		Use:   "fakeserver <host> <port>",
		Short: "Reference Preferans server for the conformance harness",
		Long: `Serve the Preferans websocket protocol on host:port: seat three players, deal,
and run the bidding turn order. Runs until SIGINT or SIGTERM.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[1])
			if err != nil || port <= 0 || port > 65535 {
				return fmt.Errorf("invalid port %q", args[1])
			}
			cfg.Host, cfg.Port = args[0], port
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				cfg.Mode = gin.DebugMode
			}
			code = fakeserver.RunProcess(cmd.Context(), cfg)
			return nil
		},
	}
	cmd.Flags().DurationVar(&cfg.RaceWindow, "race-window", 0, "crash when two logins arrive closer than this (0 disables)")
	cmd.Flags().DurationVar(&cfg.ReconnectGrace, "reconnect-grace", 10*time.Second, "keep a disconnected player's seat this long")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 0, "shuffle seed (0 picks one at random)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	err := cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(fakeserver.ExitFailure)
	}
	os.Exit(code)
}
