package fakeserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleksandrkozlov/preferans/internal/adapters/ws"
	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/core"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	cfg.Mode = gin.TestMode
	if cfg.Seed == 0 {
		cfg.Seed = 7
	}
	s := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(s.Handler(ctx))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type client struct {
	t    *testing.T
	conn *ws.Connection
	name string
	id   domain.PlayerID
}

func connect(t *testing.T, endpoint, name string) *client {
	t.Helper()
	conn, err := ws.Dial(context.Background(), endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.CloseNormalClosure) })
	return &client{t: t, conn: conn, name: name}
}

func (c *client) login(id domain.PlayerID) {
	c.t.Helper()
	payload := codec.NewPayload().
		String(codec.LoginPlayerName, c.name).
		String(codec.LoginPlayerID, string(id)).
		Bytes()
	require.NoError(c.t, c.conn.Send(domain.Envelope{Method: domain.MethodLoginRequest, Payload: payload}))
}

func (c *client) next() (domain.Envelope, codec.Fields) {
	c.t.Helper()
	env, err := c.conn.Receive(context.Background(), time.Now().Add(2*time.Second))
	require.NoError(c.t, err)
	f, err := codec.ParseFields(env.Payload)
	require.NoError(c.t, err)
	return env, f
}

func (c *client) expect(method string) codec.Fields {
	c.t.Helper()
	env, f := c.next()
	require.Equal(c.t, method, env.Method)
	return f
}

func (c *client) loginAndWait() {
	c.t.Helper()
	c.login("")
	f := c.expect(domain.MethodLoginResponse)
	require.Empty(c.t, f.String(FieldError))
	c.id = domain.PlayerID(f.String(FieldPlayerID))
	require.NotEmpty(c.t, c.id)
}

func seatThree(t *testing.T, endpoint string) []*client {
	t.Helper()
	clients := make([]*client, NumberOfPlayers)
	for i := range clients {
		clients[i] = connect(t, endpoint, fmt.Sprintf("Player%d", i))
		clients[i].loginAndWait()
	}
	return clients
}

func TestThreePlayersAreDealt(t *testing.T) {
	s, endpoint := startServer(t, Config{})
	clients := seatThree(t, endpoint)
	p0, p1, p2 := clients[0], clients[1], clients[2]

	assert.Equal(t, p1.name, p0.expect(domain.MethodPlayerJoined).String(FieldPlayerName))
	assert.Equal(t, p2.name, p0.expect(domain.MethodPlayerJoined).String(FieldPlayerName))

	assert.Equal(t, p0.name, p1.expect(domain.MethodPlayerJoined).String(FieldPlayerName))
	assert.Equal(t, p2.name, p1.expect(domain.MethodPlayerJoined).String(FieldPlayerName))

	assert.Equal(t, p0.name, p2.expect(domain.MethodPlayerJoined).String(FieldPlayerName))
	assert.Equal(t, p1.name, p2.expect(domain.MethodPlayerJoined).String(FieldPlayerName))

	seen := map[string]bool{}
	for _, c := range clients {
		cards := c.expect(domain.MethodDealCards).Strings(FieldCards)
		assert.Len(t, cards, HandSize)
		for _, card := range cards {
			assert.False(t, seen[card], "card %s dealt twice", card)
			seen[card] = true
		}
		turn := c.expect(domain.MethodPlayerTurn)
		assert.Equal(t, string(p0.id), turn.String(FieldPlayerID))
		assert.Equal(t, StageBidding, turn.String(FieldStage))
	}

	assert.True(t, s.Table().Dealt())
	snap := s.Table().Snapshot()
	require.Len(t, snap, NumberOfPlayers)
	assert.Equal(t, "Player2", snap[2].Name)
	assert.Equal(t, HandSize, snap[0].Cards)
}

func TestLoginResponseListsPlayers(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	p0 := connect(t, endpoint, "Player0")
	p0.loginAndWait()

	p1 := connect(t, endpoint, "Player1")
	p1.login("")
	f := p1.expect(domain.MethodLoginResponse)
	require.Len(t, f[FieldPlayers], 2)

	first, err := codec.ParseFields(f[FieldPlayers][0])
	require.NoError(t, err)
	assert.Equal(t, "Player0", first.String(FieldPlayerName))
	assert.Equal(t, string(p0.id), first.String(FieldPlayerID))
}

func TestFourthPlayerIsRejected(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	seatThree(t, endpoint)

	p3 := connect(t, endpoint, "Player3")
	p3.login("")
	f := p3.expect(domain.MethodLoginResponse)
	assert.Equal(t, "table is full", f.String(FieldError))
	assert.Empty(t, f.String(FieldPlayerID))
}

func TestEmptyNameIsRejected(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	c := connect(t, endpoint, "")
	c.login("")
	f := c.expect(domain.MethodLoginResponse)
	assert.Equal(t, domain.ErrPlayerNameEmpty.Error(), f.String(FieldError))
}

func TestPingPongEcho(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	c := connect(t, endpoint, "Player0")
	require.NoError(t, c.conn.Send(domain.Envelope{Method: domain.MethodPingPong, Payload: []byte{0x08, 0x01}}))

	env, _ := c.next()
	assert.Equal(t, domain.MethodPingPong, env.Method)
	assert.Equal(t, []byte{0x08, 0x01}, env.Payload)
}

func TestUnknownMethodIgnored(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	c := connect(t, endpoint, "Player0")
	require.NoError(t, c.conn.Send(domain.Envelope{Method: "PlayCard"}))
	c.loginAndWait()
}

func TestDisconnectAnnouncesPlayerLeft(t *testing.T) {
	s, endpoint := startServer(t, Config{})
	p0 := connect(t, endpoint, "Player0")
	p0.loginAndWait()
	p1 := connect(t, endpoint, "Player1")
	p1.loginAndWait()
	p0.expect(domain.MethodPlayerJoined)

	p1.conn.Close(websocket.CloseNormalClosure)
	f := p0.expect(domain.MethodPlayerLeft)
	assert.Equal(t, string(p1.id), f.String(FieldPlayerID))
	assert.Len(t, s.Table().Snapshot(), 1)
}

func TestReconnectKeepsSeat(t *testing.T) {
	s, endpoint := startServer(t, Config{ReconnectGrace: 5 * time.Second})
	p0 := connect(t, endpoint, "Player0")
	p0.loginAndWait()
	p1 := connect(t, endpoint, "Player1")
	p1.loginAndWait()
	p0.expect(domain.MethodPlayerJoined)

	p1.conn.Close(websocket.CloseNormalClosure)
	require.Eventually(t, func() bool {
		snap := s.Table().Snapshot()
		return len(snap) == 2 && !snap[1].Connected
	}, 2*time.Second, 10*time.Millisecond)

	again := connect(t, endpoint, "Player1")
	again.login(p1.id)
	f := again.expect(domain.MethodLoginResponse)
	assert.Equal(t, string(p1.id), f.String(FieldPlayerID))

	_, err := core.WaitUntil(context.Background(), p0.conn, core.MethodIs(domain.MethodPlayerLeft), time.Now().Add(100*time.Millisecond))
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.True(t, s.Table().Snapshot()[1].Connected)
}

func TestBiddingTurnOrder(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	clients := seatThree(t, endpoint)
	for _, c := range clients {
		_, err := core.WaitUntil(context.Background(), c.conn, core.MethodIs(domain.MethodPlayerTurn), time.Now().Add(2*time.Second))
		require.NoError(t, err)
	}

	bid := func(c *client, value string) {
		payload := codec.NewPayload().String(FieldPlayerID, string(c.id)).String(FieldBid, value).Bytes()
		require.NoError(t, c.conn.Send(domain.Envelope{Method: domain.MethodBidding, Payload: payload}))
	}
	turn := func(c *client) codec.Fields { return c.expect(domain.MethodPlayerTurn) }

	bid(clients[0], bidPass)
	for _, c := range clients[1:] {
		f := c.expect(domain.MethodBidding)
		assert.Equal(t, bidPass, f.String(FieldBid))
	}
	for _, c := range clients {
		f := turn(c)
		assert.Equal(t, string(clients[1].id), f.String(FieldPlayerID))
		assert.Equal(t, StageBidding, f.String(FieldStage))
	}

	bid(clients[1], "6_spades")
	clients[0].expect(domain.MethodBidding)
	clients[2].expect(domain.MethodBidding)
	for _, c := range clients {
		turn(c)
	}

	bid(clients[2], bidPass)
	clients[0].expect(domain.MethodBidding)
	clients[1].expect(domain.MethodBidding)
	for _, c := range clients {
		f := turn(c)
		assert.Equal(t, string(clients[1].id), f.String(FieldPlayerID))
		assert.Equal(t, StageTalonPicking, f.String(FieldStage))
		assert.Len(t, f.Strings(FieldTalon), TalonSize)
	}
}

func TestBidOutOfTurnIgnored(t *testing.T) {
	_, endpoint := startServer(t, Config{})
	clients := seatThree(t, endpoint)
	for _, c := range clients {
		_, err := core.WaitUntil(context.Background(), c.conn, core.MethodIs(domain.MethodPlayerTurn), time.Now().Add(2*time.Second))
		require.NoError(t, err)
	}

	payload := codec.NewPayload().String(FieldBid, bidPass).Bytes()
	require.NoError(t, clients[2].conn.Send(domain.Envelope{Method: domain.MethodBidding, Payload: payload}))

	_, err := core.WaitUntil(context.Background(), clients[0].conn, core.Any(), time.Now().Add(100*time.Millisecond))
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestLoginRaceCrashes(t *testing.T) {
	s, endpoint := startServer(t, Config{RaceWindow: time.Second})
	p0 := connect(t, endpoint, "Player0")
	p1 := connect(t, endpoint, "Player1")

	p0.login("")
	p1.login("")

	select {
	case <-s.Crashed():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not crash")
	}

	for _, c := range []*client{p0, p1} {
		_, err := core.WaitUntil(context.Background(), c.conn, core.MethodIs("never"), time.Now().Add(2*time.Second))
		assert.ErrorIs(t, err, domain.ErrTransport)
	}

	// the listener may still upgrade, but a crashed server drops the connection at once
	late, err := ws.Dial(context.Background(), endpoint)
	if err != nil {
		assert.ErrorIs(t, err, domain.ErrConnect)
		return
	}
	defer late.Close(websocket.CloseNormalClosure)
	_, err = late.Receive(context.Background(), time.Now().Add(2*time.Second))
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestStaggeredLoginsSurviveRace(t *testing.T) {
	s, endpoint := startServer(t, Config{RaceWindow: 50 * time.Millisecond})
	for i := 0; i < NumberOfPlayers; i++ {
		c := connect(t, endpoint, fmt.Sprintf("Player%d", i))
		time.Sleep(100 * time.Millisecond)
		c.loginAndWait()
	}
	select {
	case <-s.Crashed():
		t.Fatal("staggered logins crashed the server")
	default:
	}
	assert.True(t, s.Table().Dealt())
}

func TestStatusEndpoint(t *testing.T) {
	s := New(Config{Mode: gin.TestMode, Seed: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(s.Handler(ctx))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestServeStopsOnContext(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", Port: 0, Mode: gin.TestMode})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
