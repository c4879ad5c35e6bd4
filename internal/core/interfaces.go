// Package core holds the transport-agnostic pieces of the harness: the receiver abstraction,
// predicates over envelopes and the deadline-bound wait built on them.
package core

import (
	"context"
	"time"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// Receiver yields inbound envelopes of one connection in arrival order.
// Receive blocks until an envelope is available or the deadline passes; on deadline, or when
// ctx's own deadline expires first, it returns a *domain.TimeoutError and the receiver stays usable.
type Receiver interface {
	Receive(ctx context.Context, deadline time.Time) (domain.Envelope, error)
}

// Sender writes one envelope to the peer.
type Sender interface {
	Send(env domain.Envelope) error
}

// Conn is what a session owns.
type Conn interface {
	Receiver
	Sender
	Close(code int)
}
