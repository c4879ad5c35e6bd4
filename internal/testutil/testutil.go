// Package testutil holds helpers shared by tests that need a real server process.
package testutil

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oleksandrkozlov/preferans/internal/adapters/fakeserver"
)

const (
	helperEnv     = "PREF_FAKESERVER_HELPER"
	raceWindowEnv = "PREF_FAKESERVER_RACE_WINDOW"
)

// RunFakeServerIfHelper turns the current test binary into a fake server when it was started
// by FakeServerEnv. Call it first in TestMain; it does not return in that case.
func RunFakeServerIfHelper() {
	if os.Getenv(helperEnv) == "" {
		return
	}
	if len(os.Args) < 3 {
		os.Exit(fakeserver.ExitFailure)
	}
	port, err := strconv.Atoi(os.Args[2])
	if err != nil {
		os.Exit(fakeserver.ExitFailure)
	}
	window, _ := time.ParseDuration(os.Getenv(raceWindowEnv))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := fakeserver.RunProcess(ctx, fakeserver.Config{
		Host:       os.Args[1],
		Port:       port,
		RaceWindow: window,
		Mode:       gin.ReleaseMode,
	})
	cancel()
	os.Exit(code)
}

// FakeServerEnv is the environment that makes the test binary act as a fake server.
func FakeServerEnv(raceWindow time.Duration) []string {
	return []string{helperEnv + "=1", raceWindowEnv + "=" + raceWindow.String()}
}

// FakeServerBinary is the path to re-execute as the server under test.
func FakeServerBinary() string { return os.Args[0] }

// FreePort returns a TCP port on 127.0.0.1 that was free a moment ago.
func FreePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}
