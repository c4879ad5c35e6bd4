package ws

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// Endpoint is the websocket URL of a server listening on host:port.
func Endpoint(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Dial performs the websocket handshake with endpoint and starts reading.
// Refusal, handshake failure and ctx expiry all surface as *domain.ConnectError.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Connection, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.endpoint = endpoint

	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: o.handshakeTimeout,
	}
	conn, _, err := d.DialContext(ctx, endpoint, nil)
	if err != nil {
		o.logger.Debug().Err(err).Str("module", "ws").Str("endpoint", endpoint).Msg("dial failed")
		return nil, &domain.ConnectError{Endpoint: endpoint, Cause: err}
	}
	conn.SetReadLimit(o.readLimit)
	return newConnection(conn, o), nil
}
