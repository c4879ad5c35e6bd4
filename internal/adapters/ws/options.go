package ws

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultCloseTimeout     = time.Second
	DefaultReadLimit        = 1 << 20
)

type options struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	closeTimeout     time.Duration
	readLimit        int64
	endpoint         string
	logger           zerolog.Logger
}

// Option adjusts a connection. Non-positive durations and limits keep the default.
type Option func(*options)

func defaultOptions() options {
	return options{
		handshakeTimeout: DefaultHandshakeTimeout,
		writeTimeout:     DefaultWriteTimeout,
		closeTimeout:     DefaultCloseTimeout,
		readLimit:        DefaultReadLimit,
		logger:           log.Logger,
	}
}

// WithHandshakeTimeout bounds the opening handshake in addition to the dial context.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithCloseTimeout is how long Close waits for the peer to answer the close frame.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// WithEndpoint labels a connection built with NewConnection.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
