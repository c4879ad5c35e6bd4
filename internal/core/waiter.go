package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// maxDiscardedReported bounds the method list carried by a TimeoutError.
const maxDiscardedReported = 32

// DeadlineAfter turns a relative budget into the absolute deadline shared by one wait.
func DeadlineAfter(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}

// Remaining is the budget left until deadline, never negative.
func Remaining(deadline time.Time) time.Duration {
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

// WaitUntil receives from r until an envelope matches p and returns it.
// Envelopes that do not match are consumed and dropped for good.
// If the deadline passes first, the error is a *domain.TimeoutError naming p and the
// dropped methods; r remains usable. An expired ctx deadline counts as a timeout too, while
// cancellation and transport or format errors are returned as is.
func WaitUntil(ctx context.Context, r Receiver, p Predicate, deadline time.Time) (domain.Envelope, error) {
	var (
		discarded []string
		dropped   int
	)
	for {
		env, err := r.Receive(ctx, deadline)
		if err != nil {
			if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				return domain.Envelope{}, &domain.TimeoutError{
					Op:        "wait",
					Predicate: p.String(),
					Deadline:  effectiveDeadline(ctx, deadline),
					Discarded: discardedList(discarded, dropped),
					Dropped:   dropped,
				}
			}
			return domain.Envelope{}, err
		}
		if p.Match(env) {
			return env, nil
		}
		log.Debug().Str("module", "core.waiter").Str("method", env.Method).Str("want", p.String()).Msg("discarded")
		if len(discarded) < maxDiscardedReported {
			discarded = append(discarded, env.Method)
		}
		dropped++
	}
}

func effectiveDeadline(ctx context.Context, deadline time.Time) time.Time {
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func discardedList(methods []string, total int) []string {
	if total > len(methods) {
		methods = append(methods, "...")
	}
	return methods
}
