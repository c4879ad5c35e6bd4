//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// launcherScript starts a long running grandchild that inherits the output pipes and records
// its pid next to the script, the way server wrapper scripts do.
const launcherScript = `#!/bin/sh
echo launching
sleep 30 &
echo $! > "$0.pid"
wait
`

func startLauncher(t *testing.T) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server")
	require.NoError(t, os.WriteFile(path, []byte(launcherScript), 0o755))

	s, err := Start(path, "127.0.0.1", freePort(t), WithKillWait(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop(time.Second) })
	return s, path + ".pid"
}

func grandchildPid(t *testing.T, pidFile string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

// alive treats zombies as gone: they only wait for init to reap them.
func alive(pid int) bool {
	if data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat"); err == nil {
		fields := strings.Fields(string(data))
		return len(fields) > 2 && fields[2] != "Z"
	}
	return syscall.Kill(pid, 0) == nil
}

func TestAwaitListeningKillsLauncherTree(t *testing.T) {
	s, pidFile := startLauncher(t)
	pid := grandchildPid(t, pidFile)

	start := time.Now()
	err := s.AwaitListening(context.Background(), 200*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrStartup)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, s.Running())
	assert.Equal(t, Stopped, s.State())
	assert.Eventually(t, func() bool { return !alive(pid) }, 2*time.Second, 20*time.Millisecond)

	stdout, _ := s.Output()
	assert.Contains(t, stdout, "launching")
}

func TestStopTerminatesLauncherTree(t *testing.T) {
	s, pidFile := startLauncher(t)
	pid := grandchildPid(t, pidFile)
	require.True(t, alive(pid))

	s.Stop(time.Second)
	assert.False(t, s.Running())
	assert.Equal(t, Stopped, s.State())
	assert.Eventually(t, func() bool { return !alive(pid) }, 2*time.Second, 20*time.Millisecond)
}
