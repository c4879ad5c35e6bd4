// Package ws is the client side websocket transport: one Connection per simulated player,
// carrying binary envelopes and queueing inbound ones in arrival order.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/core"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

var _ core.Conn = (*Connection)(nil)

type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	WriteControl(mt int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is owned by exactly one session. Send and Close may be called from any goroutine;
// Receive is meant for a single consumer.
type Connection struct {
	conn  WSConn
	opts  options
	log   zerolog.Logger
	state atomic.Int32
	inbox *inbox

	wmu       sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection wraps an already open transport and starts its read pump.
func NewConnection(conn WSConn, opts ...Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newConnection(conn, o)
}

func newConnection(conn WSConn, o options) *Connection {
	c := &Connection{
		conn:  conn,
		opts:  o,
		log:   o.logger.With().Str("module", "ws").Str("endpoint", o.endpoint).Logger(),
		inbox: newInbox(),
		done:  make(chan struct{}),
	}
	c.state.Store(int32(Open))
	go c.readPump()
	c.log.Debug().Msg("connection open")
	return c
}

func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) Endpoint() string { return c.opts.endpoint }

// Pending is the number of received envelopes nobody has consumed yet.
func (c *Connection) Pending() int { return c.inbox.len() }

// Send encodes env and writes it as one binary frame.
func (c *Connection) Send(env domain.Envelope) error {
	if c.State() != Open {
		return &domain.TransportError{Op: "send " + env.Method, Cause: domain.ErrNotOpen}
	}
	data, err := codec.Encode(env)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout)); err != nil {
		return &domain.TransportError{Op: "send " + env.Method, Cause: err}
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.log.Error().Err(err).Str("method", env.Method).Msg("write failed")
		return &domain.TransportError{Op: "send " + env.Method, Cause: err}
	}
	c.log.Debug().Str("method", env.Method).Int("bytes", len(data)).Msg("sent")
	return nil
}

// Receive returns the next inbound envelope. It blocks until one is queued, the transport
// fails, ctx is done or deadline passes. A deadline, including one carried by ctx, yields
// *domain.TimeoutError and leaves the connection open; nothing is lost. Cancellation returns
// ctx.Err(). Envelopes queued before a transport or format
// failure are returned before the failure itself.
func (c *Connection) Receive(ctx context.Context, deadline time.Time) (domain.Envelope, error) {
	for {
		if !time.Now().Before(deadline) {
			return domain.Envelope{}, &domain.TimeoutError{Op: "receive", Deadline: deadline}
		}
		env, ok, err := c.inbox.pop()
		if ok {
			return env, nil
		}
		if err != nil {
			return domain.Envelope{}, err
		}

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-c.inbox.notify:
			timer.Stop()
		case <-timer.C:
			return domain.Envelope{}, &domain.TimeoutError{Op: "receive", Deadline: deadline}
		case <-ctx.Done():
			timer.Stop()
			if d, ok := ctx.Deadline(); ok && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.Envelope{}, &domain.TimeoutError{Op: "receive", Deadline: d}
			}
			return domain.Envelope{}, ctx.Err()
		}
	}
}

// Close sends a close frame with code, waits briefly for the peer to answer and releases the
// transport. Later calls do nothing.
func (c *Connection) Close(code int) {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(Closed)))
		c.inbox.fail(&domain.TransportError{Op: "receive", Cause: domain.ErrNotOpen})
		if prev == Open {
			msg := websocket.FormatCloseMessage(code, "")
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.writeTimeout)); err == nil {
				select {
				case <-c.done:
				case <-time.After(c.opts.closeTimeout):
				}
			}
		}
		_ = c.conn.Close()
		c.log.Debug().Int("code", code).Msg("connection closed")
	})
}

// Done is closed when the read pump exits.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) readPump() {
	defer close(c.done)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.inbox.fail(c.readError(err))
			if c.state.CompareAndSwap(int32(Open), int32(Closed)) {
				c.log.Warn().Err(err).Msg("connection dropped")
				_ = c.conn.Close()
			}
			return
		}
		if mt != websocket.BinaryMessage {
			c.abort(websocket.CloseUnsupportedData, &domain.FormatError{Reason: fmt.Sprintf("unexpected frame type %d", mt)})
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			c.abort(websocket.CloseInvalidFramePayloadData, err)
			return
		}
		c.log.Debug().Str("method", env.Method).Int("bytes", len(data)).Msg("received")
		c.inbox.push(env)
	}
}

// abort ends a desynchronized stream: the failure is queued behind what was already received.
func (c *Connection) abort(code int, err error) {
	c.log.Error().Err(err).Msg("stream out of sync")
	c.inbox.fail(err)
	if c.state.CompareAndSwap(int32(Open), int32(Closed)) {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(c.opts.writeTimeout))
		_ = c.conn.Close()
	}
}

func (c *Connection) readError(err error) error {
	if c.State() == Closed {
		return &domain.TransportError{Op: "receive", Cause: domain.ErrNotOpen}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &domain.TransportError{Op: "receive", Code: ce.Code, Cause: err}
	}
	return &domain.TransportError{Op: "receive", Cause: err}
}
