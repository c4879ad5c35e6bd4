// Package fakeserver is a small in-process stand-in for the Preferans game server. It speaks the
// same envelopes over websocket, seats three players, deals and runs the bidding turn order,
// so the harness can be exercised end to end without the real server build.
package fakeserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrCrashed is returned by ListenAndServe after the login race was triggered.
var ErrCrashed = errors.New("server crashed")

type Config struct {
	Host string
	Port int
	// RaceWindow makes two logins closer than this crash the server. Zero disables it.
	RaceWindow time.Duration
	// ReconnectGrace keeps a disconnected player's seat before announcing PlayerLeft.
	ReconnectGrace time.Duration
	// Seed fixes the shuffle. Zero picks a random seed.
	Seed         int64
	WriteTimeout time.Duration
	ReadLimit    int64
	Mode         string
	Policy       Policy
}

func (c *Config) setDefaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32768
	}
	if c.Mode == "" {
		c.Mode = gin.ReleaseMode
	}
}

type Server struct {
	cfg   Config
	table *Table
	race  *LoginRaceDetector

	mu      sync.Mutex
	peers   map[*peer]struct{}
	crashed chan struct{}
	reason  string
}

func New(cfg Config) *Server {
	cfg.setDefaults()
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Server{
		cfg:     cfg,
		table:   NewTable(rand.New(rand.NewPCG(seed, seed)), cfg.Policy, cfg.ReconnectGrace),
		race:    NewLoginRaceDetector(cfg.RaceWindow),
		peers:   make(map[*peer]struct{}),
		crashed: make(chan struct{}),
	}
}

func (s *Server) Addr() string { return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)) }

func (s *Server) Table() *Table { return s.table }

// Crashed is closed when the login race fired.
func (s *Server) Crashed() <-chan struct{} { return s.crashed }

// Handler builds the HTTP handler. Connections live until ctx is done or the server crashes.
func (s *Server) Handler(ctx context.Context) http.Handler {
	return SetupRouter(ctx, s)
}

// ListenAndServe binds the configured address and serves until ctx is done (nil error) or the
// server crashes (ErrCrashed).
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("module", "fakeserver").Str("addr", ln.Addr().String()).Msg("server started")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case <-s.crashed:
		_ = srv.Close()
		s.closeAll()
		return fmt.Errorf("%w: %s", ErrCrashed, s.reason)
	case err := <-errCh:
		s.closeAll()
		return err
	}

	log.Info().Str("module", "fakeserver").Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	if err != nil {
		log.Error().Err(err).Str("module", "fakeserver").Msg("server forced to shutdown")
		return err
	}
	log.Info().Str("module", "fakeserver").Msg("server exited gracefully")
	return nil
}

func (s *Server) crash(reason string) {
	s.mu.Lock()
	select {
	case <-s.crashed:
		s.mu.Unlock()
		return
	default:
	}
	s.reason = reason
	close(s.crashed)
	s.mu.Unlock()

	log.Error().Str("module", "fakeserver").Str("reason", reason).Msg("crashed")
	s.closeAll()
}

func (s *Server) track(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.crashed:
		return false
	default:
	}
	s.peers[p] = struct{}{}
	return true
}

func (s *Server) forget(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, p)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}
