package daemon

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is far above any kernel pid_max.
const deadPID = 1<<31 - 1

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "run", "keymeter.pid"))
}

func TestNewManagerPaths(t *testing.T) {
	m := NewManager("/data/keymeter.pid")
	assert.Equal(t, "/data/keymeter.pid", m.PidFile())
	assert.Equal(t, "/data/keymeter.state", m.StateFile())
}

func TestAcquireRelease(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Acquire())

	pid, err := m.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, m.IsRunning())

	info, err := os.Stat(m.PidFile())
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	require.NoError(t, m.WriteState(&State{PID: pid, StartedAt: time.Now()}))
	require.NoError(t, m.Release())

	_, err = os.Stat(m.PidFile())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(m.StateFile())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, m.IsRunning())

	assert.NoError(t, m.Release(), "second release is a no-op")
}

func TestAcquireTwice(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Acquire())
	defer m.Release()

	require.NoError(t, m.Acquire(), "same manager re-acquiring is a no-op")

	other := NewManager(m.PidFile())
	assert.ErrorIs(t, other.Acquire(), ErrAlreadyRunning)
}

func TestAcquireTakesOverStalePID(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.PidFile()), 0700))
	require.NoError(t, os.WriteFile(m.PidFile(), []byte(strconv.Itoa(deadPID)+"\n"), 0600))

	status, err := m.Status()
	require.NoError(t, err)
	assert.True(t, status.Stale)
	assert.False(t, status.Running)

	require.NoError(t, m.Acquire())
	defer m.Release()

	pid, err := m.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadPIDInvalid(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.PidFile()), 0700))

	for _, content := range []string{"", "abc", "-4", "0"} {
		require.NoError(t, os.WriteFile(m.PidFile(), []byte(content), 0600))
		_, err := m.ReadPID()
		assert.Error(t, err, "content %q", content)
		assert.False(t, m.IsRunning())
	}
}

func TestStatusNoPIDFile(t *testing.T) {
	m := newTestManager(t)
	status, err := m.Status()
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.False(t, status.Stale)
	assert.Zero(t, status.PID)
}

func TestStatusRunning(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Acquire())
	defer m.Release()

	started := time.Now().Add(-time.Minute)
	require.NoError(t, m.WriteState(&State{
		PID:         os.Getpid(),
		StartedAt:   started,
		CaptureFile: "/tmp/keystrokes_20240101_000000.txt",
		Source:      "simulated",
	}))

	status, err := m.Status()
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, "/tmp/keystrokes_20240101_000000.txt", status.CaptureFile)
	assert.Equal(t, "simulated", status.Source)
	assert.GreaterOrEqual(t, status.Uptime, time.Minute)
}

func TestStateRoundTrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.StateFile()), 0700))

	want := &State{PID: 42, StartedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), Version: "dev"}
	require.NoError(t, m.WriteState(want))

	got, err := m.ReadState()
	require.NoError(t, err)
	assert.Equal(t, want.PID, got.PID)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, "dev", got.Version)
}

func TestSignalStopNotRunning(t *testing.T) {
	m := newTestManager(t)
	_, err := m.SignalStop()
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, os.MkdirAll(filepath.Dir(m.PidFile()), 0700))
	require.NoError(t, os.WriteFile(m.PidFile(), []byte(strconv.Itoa(deadPID)), 0600))
	pid, err := m.SignalStop()
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, deadPID, pid)

	require.NoError(t, m.Cleanup())
	_, err = os.Stat(m.PidFile())
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupRefusesLiveDaemon(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Acquire())
	defer m.Release()
	assert.ErrorIs(t, m.Cleanup(), ErrAlreadyRunning)
}

func TestWaitForStopDeadProcess(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.WaitForStop(ctx, deadPID))
}

func TestWaitForStopTimeout(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := m.WaitForStop(ctx, os.Getpid())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsChild(t *testing.T) {
	t.Setenv(ChildEnv, "")
	assert.False(t, IsChild())
	t.Setenv(ChildEnv, "1")
	assert.True(t, IsChild())
}
