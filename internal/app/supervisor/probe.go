package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	DefaultProbeInterval = 50 * time.Millisecond
	DefaultDialTimeout   = 200 * time.Millisecond
)

var (
	ErrPortClosed    = errors.New("port did not open")
	ErrProcessExited = errors.New("process exited")
)

// Probe reports whether a TCP connection to addr can be established. The connection is
// closed right away; nothing is written.
func Probe(ctx context.Context, addr string, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitForPort polls addr until it accepts connections or timeout elapses.
func WaitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	return waitForPort(ctx, addr, timeout, DefaultProbeInterval, DefaultDialTimeout, nil)
}

// waitForPort gives up early when exited is closed.
func waitForPort(ctx context.Context, addr string, timeout, interval, dialTimeout time.Duration, exited <-chan struct{}) error {
	deadline := time.Now().Add(timeout)
	for {
		budget := min(dialTimeout, time.Until(deadline))
		if budget > 0 && Probe(ctx, addr, budget) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s within %s", ErrPortClosed, addr, timeout)
		}

		t := time.NewTimer(min(interval, time.Until(deadline)))
		select {
		case <-t.C:
		case <-exited:
			t.Stop()
			return ErrProcessExited
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
