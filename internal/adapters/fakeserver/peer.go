package fakeserver

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrPeerClosed   = errors.New("connection closed")
)

const sendQueueSize = 64

// frame is one encoded binary websocket message.
type frame []byte

// peer is one accepted websocket. Frames go out through send and the write pump.
type peer struct {
	conn *websocket.Conn
	send chan frame
	addr string

	mu     sync.RWMutex
	closed bool
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn: conn,
		send: make(chan frame, sendQueueSize),
		addr: conn.RemoteAddr().String(),
	}
}

func (p *peer) TrySend(f frame) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPeerClosed
	}
	select {
	case p.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (p *peer) SendEnvelope(env domain.Envelope) error {
	return p.TrySend(codec.MustEncode(env))
}

func (p *peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.send)
	_ = p.conn.Close()
	p.mu.Unlock()
}

func (p *peer) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
