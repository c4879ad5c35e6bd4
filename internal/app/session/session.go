// Package session is one simulated player: a named identity bound to its own connection.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/adapters/ws"
	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/core"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// DialFunc opens the transport of a session.
type DialFunc func(ctx context.Context, endpoint string) (core.Conn, error)

type options struct {
	dial   DialFunc
	wsOpts []ws.Option
}

type Option func(*options)

// WithDialer replaces the websocket dialer.
func WithDialer(d DialFunc) Option {
	return func(o *options) { o.dial = d }
}

// WithConnOptions are passed to ws.Dial.
func WithConnOptions(opts ...ws.Option) Option {
	return func(o *options) { o.wsOpts = append(o.wsOpts, opts...) }
}

type Session struct {
	player   *domain.Player
	endpoint string
	conn     core.Conn
	loggedIn atomic.Bool
	log      zerolog.Logger
}

// Open connects to endpoint, waits joinDelay and sends the login envelope for name.
// It does not wait for the LoginResponse; scripts do that with WaitFor.
func Open(ctx context.Context, endpoint, name string, joinDelay time.Duration, opts ...Option) (*Session, error) {
	player, err := domain.NewPlayer(name)
	if err != nil {
		return nil, fmt.Errorf("player %q: %w", name, err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dial == nil {
		wsOpts := o.wsOpts
		o.dial = func(ctx context.Context, endpoint string) (core.Conn, error) {
			return ws.Dial(ctx, endpoint, wsOpts...)
		}
	}

	s := &Session{
		player:   player,
		endpoint: endpoint,
		log: log.With().Str("module", "session").
			Str("player", name).
			Str("pid", string(player.ID)).
			Logger(),
	}

	s.conn, err = o.dial(ctx, endpoint)
	if err != nil {
		s.log.Error().Err(err).Str("endpoint", endpoint).Msg("connect failed")
		return nil, err
	}
	s.log.Debug().Str("endpoint", endpoint).Msg("connected")

	if joinDelay > 0 {
		t := time.NewTimer(joinDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.Close()
			return nil, ctx.Err()
		}
	}

	login := domain.Envelope{Method: domain.MethodLoginRequest, Payload: codec.LoginRequest(name)}
	if err := s.conn.Send(login); err != nil {
		s.Close()
		return nil, fmt.Errorf("login %s: %w", name, err)
	}
	s.loggedIn.Store(true)
	s.log.Info().Dur("join_delay", joinDelay).Msg("login sent")
	return s, nil
}

func (s *Session) Name() string            { return s.player.Name }
func (s *Session) Player() domain.Player   { return *s.player }
func (s *Session) Endpoint() string        { return s.endpoint }
func (s *Session) LoggedIn() bool          { return s.loggedIn.Load() }
func (s *Session) Logger() *zerolog.Logger { return &s.log }

// Send writes an envelope of the given method on this session's connection.
func (s *Session) Send(method string, payload []byte) error {
	return s.conn.Send(domain.Envelope{Method: method, Payload: payload})
}

// WaitFor waits up to timeout for the next envelope matching p, dropping the ones before it.
func (s *Session) WaitFor(ctx context.Context, p core.Predicate, timeout time.Duration) (domain.Envelope, error) {
	return s.WaitUntil(ctx, p, core.DeadlineAfter(timeout))
}

// WaitUntil is WaitFor with an absolute deadline, for scripts sharing one budget across waits.
func (s *Session) WaitUntil(ctx context.Context, p core.Predicate, deadline time.Time) (domain.Envelope, error) {
	start := time.Now()
	env, err := core.WaitUntil(ctx, s.conn, p, deadline)
	if err != nil {
		s.log.Warn().Err(err).Str("want", p.String()).Msg("wait failed")
		return env, err
	}
	s.log.Debug().Str("method", env.Method).Dur("elapsed", time.Since(start)).Msg("matched")
	return env, nil
}

// Close ends the session with a normal closure. Safe to call more than once.
func (s *Session) Close() {
	if s.conn != nil {
		s.conn.Close(websocket.CloseNormalClosure)
	}
}
