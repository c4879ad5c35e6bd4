// Package supervisor runs the server under test as a child process and tells when it is
// ready to accept connections.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

type State int32

const (
	Starting State = iota
	Listening
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultKillWait bounds how long a killed process gets to be reaped.
const DefaultKillWait = 2 * time.Second

type options struct {
	args          []string
	env           []string
	dir           string
	teeOut        io.Writer
	teeErr        io.Writer
	probeInterval time.Duration
	dialTimeout   time.Duration
	killWait      time.Duration
}

type Option func(*options)

// WithArgs appends arguments after "<host> <port>".
func WithArgs(args ...string) Option {
	return func(o *options) { o.args = append(o.args, args...) }
}

// WithEnv adds KEY=VALUE pairs on top of the inherited environment.
func WithEnv(env ...string) Option {
	return func(o *options) { o.env = append(o.env, env...) }
}

func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithTee copies the child's output to the given writers as well. Nil writers are skipped.
func WithTee(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.teeOut = stdout
		o.teeErr = stderr
	}
}

func WithProbe(interval, dialTimeout time.Duration) Option {
	return func(o *options) {
		o.probeInterval = interval
		o.dialTimeout = dialTimeout
	}
}

func WithKillWait(d time.Duration) Option {
	return func(o *options) { o.killWait = d }
}

type Server struct {
	Host string
	Port int

	opts   options
	cmd    *exec.Cmd
	state  atomic.Int32
	stdout outputBuffer
	stderr outputBuffer
	log    zerolog.Logger

	done    chan struct{}
	waitErr error
	stopMu  sync.Mutex
}

// Start launches "<binary> <host> <port> [args...]". The process is in state Starting until
// AwaitListening succeeds.
func Start(binary, host string, port int, opts ...Option) (*Server, error) {
	o := options{
		probeInterval: DefaultProbeInterval,
		dialTimeout:   DefaultDialTimeout,
		killWait:      DefaultKillWait,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		Host: host,
		Port: port,
		opts: o,
		done: make(chan struct{}),
		log: log.With().Str("module", "supervisor").
			Str("binary", binary).
			Str("addr", net.JoinHostPort(host, strconv.Itoa(port))).
			Logger(),
	}

	args := append([]string{host, strconv.Itoa(port)}, o.args...)
	s.cmd = exec.Command(binary, args...)
	s.cmd.Dir = o.dir
	s.cmd.Env = append(os.Environ(), o.env...)
	s.cmd.Stdout = tee(&s.stdout, o.teeOut)
	s.cmd.Stderr = tee(&s.stderr, o.teeErr)
	// A grandchild holding the pipes open must not block reaping.
	s.cmd.WaitDelay = o.killWait
	setProcessGroup(s.cmd)

	if err := s.cmd.Start(); err != nil {
		s.state.Store(int32(Stopped))
		close(s.done)
		return nil, &domain.StartupError{Addr: s.Addr(), Cause: err}
	}
	s.state.Store(int32(Starting))
	s.log.Info().Int("pid", s.cmd.Process.Pid).Msg("server process started")

	go func() {
		s.waitErr = s.cmd.Wait()
		close(s.done)
	}()
	return s, nil
}

func tee(buf io.Writer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}
	return io.MultiWriter(buf, extra)
}

func (s *Server) Addr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

func (s *Server) State() State { return State(s.state.Load()) }

func (s *Server) Pid() int { return s.cmd.Process.Pid }

// Running reports whether the process has not exited yet.
func (s *Server) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Exited is closed once the process has been reaped.
func (s *Server) Exited() <-chan struct{} { return s.done }

// ExitCode is the exit status, or -1 while running or when killed by a signal.
func (s *Server) ExitCode() int {
	if s.Running() || s.cmd.ProcessState == nil {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// Output returns what the process has written so far.
func (s *Server) Output() (stdout, stderr string) {
	return s.stdout.String(), s.stderr.String()
}

// AwaitListening polls the port until it accepts a TCP connection. If it does not within
// timeout, or the process dies first, the process is killed and a *domain.StartupError with
// the captured output is returned.
func (s *Server) AwaitListening(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	err := waitForPort(ctx, s.Addr(), timeout, s.opts.probeInterval, s.opts.dialTimeout, s.done)
	if err == nil {
		s.state.CompareAndSwap(int32(Starting), int32(Listening))
		s.log.Info().Dur("elapsed", time.Since(start)).Msg("server listening")
		return nil
	}

	if err == ErrProcessExited {
		err = fmt.Errorf("%w: %v", ErrProcessExited, s.waitErr)
	}
	s.kill()
	stdout, stderr := s.Output()
	s.log.Error().Err(err).Msg("server failed to start")
	return &domain.StartupError{
		Addr:    s.Addr(),
		Timeout: timeout,
		Stdout:  stdout,
		Stderr:  stderr,
		Cause:   err,
	}
}

// Stop asks the process group to terminate and kills it when grace runs out. It never fails
// and can be called any number of times.
func (s *Server) Stop(grace time.Duration) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.State() == Stopped {
		return
	}
	s.state.Store(int32(Stopping))

	if s.Running() {
		if err := signalGroup(s.cmd, syscall.SIGTERM); err != nil {
			s.log.Warn().Err(err).Msg("terminate failed")
		}
		t := time.NewTimer(grace)
		select {
		case <-s.done:
			t.Stop()
		case <-t.C:
			s.log.Warn().Dur("grace", grace).Msg("server ignored terminate, killing")
		}
	}
	// Also reaches processes the child left behind after exiting on its own.
	s.kill()
	if s.Running() {
		s.log.Error().Msg("server still running after stop")
		return
	}
	s.log.Info().Int("exit_code", s.ExitCode()).Msg("server stopped")
}

// kill sends SIGKILL to the whole process group, including leftovers of a child that already
// exited, and waits for the child to be reaped. The state only becomes Stopped once it is.
func (s *Server) kill() {
	if err := signalGroup(s.cmd, syscall.SIGKILL); err != nil {
		s.log.Warn().Err(err).Msg("kill failed")
	}
	select {
	case <-s.done:
		s.state.Store(int32(Stopped))
	case <-time.After(s.opts.killWait):
		s.log.Error().Msg("server did not exit after kill")
	}
}
