package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/core"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    []domain.Envelope
	closed  []int
	sendErr error
	in      chan domain.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan domain.Envelope, 16)}
}

func (f *fakeConn) Send(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) Receive(ctx context.Context, deadline time.Time) (domain.Envelope, error) {
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case env := <-f.in:
		return env, nil
	case <-t.C:
		return domain.Envelope{}, &domain.TimeoutError{Op: "receive", Deadline: deadline}
	case <-ctx.Done():
		return domain.Envelope{}, ctx.Err()
	}
}

func (f *fakeConn) Close(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, code)
}

func (f *fakeConn) Sent() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Envelope(nil), f.sent...)
}

func dialer(c *fakeConn) Option {
	return WithDialer(func(context.Context, string) (core.Conn, error) { return c, nil })
}

func TestOpenSendsLogin(t *testing.T) {
	c := newFakeConn()
	s, err := Open(context.Background(), "ws://test", "Player0", 0, dialer(c))
	require.NoError(t, err)

	assert.True(t, s.LoggedIn())
	assert.Equal(t, "Player0", s.Name())
	assert.Equal(t, "ws://test", s.Endpoint())

	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MethodLoginRequest, sent[0].Method)

	f, err := codec.ParseFields(sent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "Player0", f.String(codec.LoginPlayerName))
}

func TestOpenWaitsJoinDelay(t *testing.T) {
	c := newFakeConn()
	start := time.Now()
	_, err := Open(context.Background(), "ws://test", "Player1", 50*time.Millisecond, dialer(c))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestOpenCanceledDuringJoinDelay(t *testing.T) {
	c := newFakeConn()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Open(ctx, "ws://test", "Player2", time.Minute, dialer(c))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, c.Sent())
	assert.Equal(t, []int{websocket.CloseNormalClosure}, c.closed)
}

func TestOpenRejectsBadName(t *testing.T) {
	dialed := false
	_, err := Open(context.Background(), "ws://test", "", 0, WithDialer(func(context.Context, string) (core.Conn, error) {
		dialed = true
		return newFakeConn(), nil
	}))
	assert.ErrorIs(t, err, domain.ErrPlayerNameEmpty)
	assert.False(t, dialed)
}

func TestOpenConnectError(t *testing.T) {
	cerr := &domain.ConnectError{Endpoint: "ws://test", Cause: errors.New("refused")}
	_, err := Open(context.Background(), "ws://test", "Player0", 0, WithDialer(func(context.Context, string) (core.Conn, error) {
		return nil, cerr
	}))
	assert.ErrorIs(t, err, domain.ErrConnect)
}

func TestOpenLoginSendFails(t *testing.T) {
	c := newFakeConn()
	c.sendErr = &domain.TransportError{Op: "send", Cause: domain.ErrNotOpen}
	_, err := Open(context.Background(), "ws://test", "Player0", 0, dialer(c))
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Len(t, c.closed, 1)
}

func TestWaitForDiscardsUntilMatch(t *testing.T) {
	c := newFakeConn()
	s, err := Open(context.Background(), "ws://test", "Player0", 0, dialer(c))
	require.NoError(t, err)

	c.in <- domain.Envelope{Method: domain.MethodPlayerJoined}
	c.in <- domain.Envelope{Method: domain.MethodLoginResponse}

	got, err := s.WaitFor(context.Background(), core.MethodIs(domain.MethodLoginResponse), time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodLoginResponse, got.Method)

	_, err = s.WaitFor(context.Background(), core.MethodIs(domain.MethodPlayerJoined), 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestSharedDeadline(t *testing.T) {
	c := newFakeConn()
	s, err := Open(context.Background(), "ws://test", "Player0", 0, dialer(c))
	require.NoError(t, err)

	deadline := core.DeadlineAfter(30 * time.Millisecond)
	c.in <- domain.Envelope{Method: "A"}
	_, err = s.WaitUntil(context.Background(), core.MethodIs("A"), deadline)
	require.NoError(t, err)

	_, err = s.WaitUntil(context.Background(), core.MethodIs("B"), deadline)
	var te *domain.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, deadline, te.Deadline)
}

func TestSendAndClose(t *testing.T) {
	c := newFakeConn()
	s, err := Open(context.Background(), "ws://test", "Player0", 0, dialer(c))
	require.NoError(t, err)

	require.NoError(t, s.Send(domain.MethodPingPong, nil))
	assert.Equal(t, domain.MethodPingPong, c.Sent()[1].Method)

	s.Close()
	s.Close()
	assert.Equal(t, []int{websocket.CloseNormalClosure, websocket.CloseNormalClosure}, c.closed)
}

func TestOpenOverWebsocket(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		login, err := codec.Decode(data)
		if err != nil {
			return
		}
		resp := domain.Envelope{Method: domain.MethodLoginResponse, Payload: login.Payload}
		_ = conn.WriteMessage(websocket.BinaryMessage, codec.MustEncode(resp))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s, err := Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), "Player0", 0)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.WaitFor(context.Background(), core.MethodIs(domain.MethodLoginResponse), 2*time.Second)
	require.NoError(t, err)
	f, err := codec.ParseFields(got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Player0", f.String(codec.LoginPlayerName))
}
