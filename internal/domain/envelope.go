package domain

import "fmt"

// Methods of the envelopes the harness and the reference server exchange.
// The list is not exhaustive: any non-empty method is a valid envelope.
const (
	MethodLoginRequest  = "LoginRequest"
	MethodLoginResponse = "LoginResponse"
	MethodPlayerJoined  = "PlayerJoined"
	MethodPlayerLeft    = "PlayerLeft"
	MethodDealCards     = "DealCards"
	MethodPlayerTurn    = "PlayerTurn"
	MethodBidding       = "Bidding"
	MethodPingPong      = "PingPong"
)

// Envelope is the top-level typed message unit on the wire.
// Payload is owned by the game schema and only forwarded by the harness.
type Envelope struct {
	Method  string `json:"method"`
	Payload []byte `json:"payload,omitempty"`
}

func (e Envelope) Validate() error {
	if e.Method == "" {
		return &FormatError{Reason: "empty method"}
	}
	return nil
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s(%d bytes)", e.Method, len(e.Payload))
}
