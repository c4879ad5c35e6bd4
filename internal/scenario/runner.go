package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/app/orch"
	"github.com/oleksandrkozlov/preferans/internal/app/session"
	"github.com/oleksandrkozlov/preferans/internal/core"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// ErrForbidden fails a step that received one of its forbidden methods.
var ErrForbidden = errors.New("forbidden envelope")

type RunOptions struct {
	// Unstaggered clears every join delay, for the regression run without the workaround.
	Unstaggered bool
}

// Run executes sc through o. Client script failures (timeouts, dropped connections) are
// recorded in the result and do not produce an error. The error is non-nil only when the
// run could not take place: the server did not start, a session could not connect, or ctx
// ended. The result is always returned.
func Run(ctx context.Context, o *orch.Orchestrator, sc *Scenario, opts RunOptions) (*Result, error) {
	clients := sc.ClientSpecs()
	if opts.Unstaggered {
		clients = orch.Unstaggered(clients)
	}

	res := &Result{
		Scenario:  sc.Name,
		Endpoint:  o.Endpoint(),
		Staggered: !opts.Unstaggered,
		Clients:   make([]ClientResult, len(clients)),
	}
	for i, c := range clients {
		res.Clients[i] = ClientResult{Name: c.Name, JoinDelay: c.JoinDelay}
	}

	logger := log.With().Str("module", "scenario").Str("scenario", sc.Name).Bool("staggered", res.Staggered).Logger()
	logger.Info().Int("clients", len(clients)).Msg("scenario started")

	start := time.Now()
	err := o.Run(ctx, clients, func(ctx context.Context, sessions []*session.Session) error {
		_ = o.ForEach(ctx, sessions, func(ctx context.Context, i int, s *session.Session) error {
			return runClient(ctx, s, sc, sc.StepsFor(i), &res.Clients[i])
		})
		return ctx.Err()
	})
	res.Duration = time.Since(start)
	res.ServerStdout, res.ServerStderr = o.ServerOutput()

	if err != nil {
		res.Errors = append(res.Errors, errorText(err))
		for i := range res.Clients {
			if res.Clients[i].Error == "" && len(res.Clients[i].Steps) == 0 {
				res.Clients[i].Error = "not run"
			}
		}
	}
	res.Pass = err == nil && res.Failed() == 0

	logger.Info().Bool("pass", res.Pass).Int("failed", res.Failed()).Dur("duration", res.Duration).Msg("scenario finished")
	if err != nil {
		return res, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return res, nil
}

// errorText drops the process output a startup error carries; the result keeps it separately.
func errorText(err error) string {
	var se *domain.StartupError
	if errors.As(err, &se) {
		return strings.Replace(err.Error(), se.Error(), se.Summary(), 1)
	}
	return err.Error()
}

func runClient(ctx context.Context, s *session.Session, sc *Scenario, steps []Step, out *ClientResult) error {
	for _, step := range steps {
		for n := 0; n < step.Times(); n++ {
			sr, err := runStep(ctx, s, sc, step)
			out.Steps = append(out.Steps, sr)
			if err != nil {
				out.Error = err.Error()
				if errors.Is(err, context.Canceled) {
					out.Error = "canceled"
				}
				return err
			}
		}
	}
	return nil
}

func runStep(ctx context.Context, s *session.Session, sc *Scenario, step Step) (StepResult, error) {
	sr := StepResult{Step: step.String()}
	start := time.Now()
	if step.IsSend() {
		err := s.Send(step.Send, nil)
		sr.Elapsed = time.Since(start)
		if err != nil {
			sr.Error = err.Error()
			return sr, err
		}
		sr.Method = step.Send
		sr.OK = true
		return sr, nil
	}

	sr.Timeout = sc.WaitTimeout(step)
	want, forbidden := step.Predicate(), step.Forbidden()
	p := want
	if forbidden != nil {
		p = core.Or(want, forbidden)
	}
	env, err := s.WaitFor(ctx, p, sr.Timeout)
	sr.Elapsed = time.Since(start)
	if err == nil && !want.Match(env) {
		err = fmt.Errorf("%w: %s while waiting for %s", ErrForbidden, env.Method, want)
	}
	sr.Method = env.Method
	if err != nil {
		sr.Error = err.Error()
		return sr, err
	}
	sr.OK = true
	return sr, nil
}
