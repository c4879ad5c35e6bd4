package fakeserver

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Exit codes of a fake server process.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitCrashed mimics a process killed by SIGSEGV.
	ExitCrashed = 139
)

// RunProcess serves cfg until ctx is done and maps the outcome to a process exit code.
func RunProcess(ctx context.Context, cfg Config) int {
	err := New(cfg).ListenAndServe(ctx)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCrashed):
		log.Error().Err(err).Str("module", "fakeserver").Msg("Segmentation fault")
		return ExitCrashed
	default:
		log.Error().Err(err).Str("module", "fakeserver").Msg("server error")
		return ExitFailure
	}
}
