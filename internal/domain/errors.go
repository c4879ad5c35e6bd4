package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels for errors.Is. Every typed error below matches exactly one of them.
var (
	ErrStartup   = errors.New("startup failed")
	ErrConnect   = errors.New("connect failed")
	ErrTransport = errors.New("transport failed")
	ErrTimeout   = errors.New("timed out")
	ErrFormat    = errors.New("malformed envelope")
	ErrNotOpen   = errors.New("connection not open")
)

// StartupError means the server process never opened its port within budget.
type StartupError struct {
	Addr    string
	Timeout time.Duration
	Stdout  string
	Stderr  string
	Cause   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s\nOUT:\n%s\nERR:\n%s", e.Summary(), e.Stdout, e.Stderr)
}

// Summary is the first line of Error, without the captured output.
func (e *StartupError) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server on %s failed to start", e.Addr)
	if e.Timeout > 0 {
		fmt.Fprintf(&b, " within %s", e.Timeout)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *StartupError) Is(target error) bool { return target == ErrStartup }
func (e *StartupError) Unwrap() error        { return e.Cause }

// ConnectError is a failed transport handshake.
type ConnectError struct {
	Endpoint string
	Cause    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Cause)
}

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }
func (e *ConnectError) Unwrap() error        { return e.Cause }

// TransportError is a dropped connection or a write on a connection that is not open.
type TransportError struct {
	Op    string
	Code  int // websocket close code when the peer closed, 0 otherwise
	Cause error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: connection closed with code %d: %v", e.Op, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
func (e *TransportError) Unwrap() error        { return e.Cause }

// TimeoutError is a wait whose deadline elapsed. The connection stays usable.
type TimeoutError struct {
	Op        string
	Predicate string
	Deadline  time.Time
	Discarded []string // methods dropped while waiting, possibly truncated
	Dropped   int      // total number of dropped envelopes
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Predicate != "" {
		fmt.Fprintf(&b, " for %s", e.Predicate)
	}
	b.WriteString(": deadline exceeded")
	if e.Dropped > 0 {
		fmt.Fprintf(&b, " (discarded %d: %s)", e.Dropped, strings.Join(e.Discarded, ", "))
	}
	return b.String()
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// FormatError is an envelope that cannot be decoded: the stream is out of sync.
type FormatError struct {
	Reason string
	Cause  error
}

func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed envelope: %s: %v", e.Reason, e.Cause)
	}
	return "malformed envelope: " + e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }
func (e *FormatError) Unwrap() error        { return e.Cause }
