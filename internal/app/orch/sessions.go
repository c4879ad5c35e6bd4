package orch

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/oleksandrkozlov/preferans/internal/app/session"
)

func (o *Orchestrator) pool(ctx context.Context) *pool.ContextPool {
	p := pool.New().WithContext(ctx)
	if o.cfg.Policy == CancelOnFirstFailure {
		p = p.WithCancelOnError().WithFirstError()
	}
	return p
}

// OpenSessions opens one session per client concurrently and returns them in client order
// once all have sent their login. If any fails, the ones that did open are closed.
func (o *Orchestrator) OpenSessions(ctx context.Context, endpoint string, clients []ClientSpec) ([]*session.Session, error) {
	sessions := make([]*session.Session, len(clients))
	p := o.pool(ctx)
	for i, c := range clients {
		p.Go(func(ctx context.Context) error {
			s, err := session.Open(ctx, endpoint, c.Name, c.JoinDelay, o.cfg.SessionOptions...)
			if err != nil {
				return fmt.Errorf("open session %s: %w", c.Name, err)
			}
			sessions[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		o.log.Error().Err(err).Int("clients", len(clients)).Msg("open sessions failed")
		CloseAll(sessions)
		return nil, err
	}
	o.log.Info().Int("clients", len(clients)).Msg("sessions open")
	return sessions, nil
}

// ForEach runs fn for every session concurrently and waits for all of them.
func (o *Orchestrator) ForEach(ctx context.Context, sessions []*session.Session, fn func(ctx context.Context, i int, s *session.Session) error) error {
	p := o.pool(ctx)
	for i, s := range sessions {
		p.Go(func(ctx context.Context) error {
			if err := fn(ctx, i, s); err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return p.Wait()
}

// CloseAll closes every non-nil session.
func CloseAll(sessions []*session.Session) {
	for _, s := range sessions {
		if s != nil {
			s.Close()
		}
	}
}
