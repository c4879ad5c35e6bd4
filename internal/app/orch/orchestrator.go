// Package orch runs a multi-client scenario against a supervised server: start the process,
// open the sessions concurrently, hand them to the scenario body and tear everything down.
package orch

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/adapters/ws"
	"github.com/oleksandrkozlov/preferans/internal/app/session"
	"github.com/oleksandrkozlov/preferans/internal/app/supervisor"
)

const (
	DefaultStartupTimeout = 10 * time.Second
	DefaultStopGrace      = 3 * time.Second
)

// ClientSpec describes one simulated player.
type ClientSpec struct {
	Name      string
	JoinDelay time.Duration
}

// Unstaggered returns clients with every join delay cleared.
func Unstaggered(clients []ClientSpec) []ClientSpec {
	out := make([]ClientSpec, len(clients))
	for i, c := range clients {
		out[i] = ClientSpec{Name: c.Name}
	}
	return out
}

type Config struct {
	// Binary is the server under test. When empty the server is expected to be running already
	// and is only probed for readiness, never started or stopped.
	Binary string
	Host   string
	Port   int
	Args   []string
	Env    []string

	StartupTimeout time.Duration
	StopGrace      time.Duration
	Policy         FailurePolicy

	// ServerStdout and ServerStderr receive a copy of the process output when set.
	ServerStdout io.Writer
	ServerStderr io.Writer

	ServerOptions  []supervisor.Option
	SessionOptions []session.Option
}

type Orchestrator struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	server *supervisor.Server
}

func New(cfg Config) *Orchestrator {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	return &Orchestrator{
		cfg: cfg,
		log: log.With().Str("module", "orch").Str("endpoint", ws.Endpoint(cfg.Host, cfg.Port)).Logger(),
	}
}

func (o *Orchestrator) Config() Config { return o.cfg }

func (o *Orchestrator) Endpoint() string { return ws.Endpoint(o.cfg.Host, o.cfg.Port) }

// Run executes one scenario. The server is started and awaited first; a startup failure
// aborts before any session exists. Sessions and server are always torn down afterwards,
// teardown errors are only logged.
func (o *Orchestrator) Run(ctx context.Context, clients []ClientSpec, body func(ctx context.Context, sessions []*session.Session) error) error {
	stop, err := o.startServer(ctx)
	if err != nil {
		return err
	}
	defer stop()

	sessions, err := o.OpenSessions(ctx, o.Endpoint(), clients)
	if err != nil {
		return err
	}
	defer CloseAll(sessions)

	return body(ctx, sessions)
}

// ServerOutput is what the last supervised server wrote to stdout and stderr.
func (o *Orchestrator) ServerOutput() (stdout, stderr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.server == nil {
		return "", ""
	}
	return o.server.Output()
}

func (o *Orchestrator) startServer(ctx context.Context) (func(), error) {
	if o.cfg.Binary == "" {
		addr := net.JoinHostPort(o.cfg.Host, strconv.Itoa(o.cfg.Port))
		if err := supervisor.WaitForPort(ctx, addr, o.cfg.StartupTimeout); err != nil {
			return nil, fmt.Errorf("external server: %w", err)
		}
		o.log.Info().Msg("using running server")
		return func() {}, nil
	}

	opts := append([]supervisor.Option{
		supervisor.WithArgs(o.cfg.Args...),
		supervisor.WithEnv(o.cfg.Env...),
		supervisor.WithTee(o.cfg.ServerStdout, o.cfg.ServerStderr),
	}, o.cfg.ServerOptions...)

	srv, err := supervisor.Start(o.cfg.Binary, o.cfg.Host, o.cfg.Port, opts...)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.server = srv
	o.mu.Unlock()

	if err := srv.AwaitListening(ctx, o.cfg.StartupTimeout); err != nil {
		srv.Stop(o.cfg.StopGrace)
		return nil, err
	}
	return func() { srv.Stop(o.cfg.StopGrace) }, nil
}
