// Package daemon manages keymeter as a background process: PID file,
// state file, detaching and stopping.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"keymeter/internal/security"
)

var (
	// ErrNotRunning is returned when no live daemon owns the PID file.
	ErrNotRunning = errors.New("daemon: not running")

	// ErrAlreadyRunning is returned by Acquire when another process holds
	// the PID file.
	ErrAlreadyRunning = errors.New("daemon: already running")
)

// State is the persisted description of a running daemon.
type State struct {
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	CaptureFile string    `json:"capture_file,omitempty"`
	Source      string    `json:"source,omitempty"`
	Version     string    `json:"version,omitempty"`
}

// Status is the daemon status for display.
type Status struct {
	Running     bool
	Stale       bool
	PID         int
	StartedAt   time.Time
	Uptime      time.Duration
	CaptureFile string
	Source      string
}

// Manager handles the PID and state files of one daemon instance.
type Manager struct {
	pidFile   string
	stateFile string

	held *os.File
}

// NewManager creates a manager for pidFile. The state file sits next to it
// with a .state extension.
func NewManager(pidFile string) *Manager {
	base := strings.TrimSuffix(pidFile, filepath.Ext(pidFile))
	return &Manager{
		pidFile:   pidFile,
		stateFile: base + ".state",
	}
}

// PidFile returns the PID file path.
func (m *Manager) PidFile() string { return m.pidFile }

// StateFile returns the state file path.
func (m *Manager) StateFile() string { return m.stateFile }

// ReadPID reads the daemon's PID from the PID file.
func (m *Manager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID file: pid %d", pid)
	}
	return pid, nil
}

// IsRunning reports whether the PID file names a live process.
func (m *Manager) IsRunning() bool {
	pid, err := m.ReadPID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// Acquire writes the current PID to the PID file and keeps it locked until
// Release. A PID file left by a dead process is taken over.
func (m *Manager) Acquire() error {
	if m.held != nil {
		return nil
	}
	if err := security.EnsureSecureDir(filepath.Dir(m.pidFile)); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	f, err := os.OpenFile(m.pidFile, os.O_RDWR|os.O_CREATE, security.PermSecretFile)
	if err != nil {
		return fmt.Errorf("open pid file: %w", err)
	}
	if err := security.TryLockFile(f); err != nil {
		f.Close()
		if errors.Is(err, security.ErrLocked) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("lock pid file: %w", err)
	}

	if err := writePID(f, os.Getpid()); err != nil {
		security.UnlockFile(f)
		f.Close()
		return fmt.Errorf("write pid file: %w", err)
	}

	m.held = f
	return nil
}

func writePID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

// Release removes the PID and state files and drops the lock.
func (m *Manager) Release() error {
	if m.held == nil {
		return nil
	}
	f := m.held
	m.held = nil

	// Remove while still locked so a new daemon cannot lose its fresh PID
	// file. Platforms that refuse to delete open files get a second try.
	removeErr := m.removeFiles()
	security.UnlockFile(f)
	closeErr := f.Close()
	if removeErr != nil {
		removeErr = m.removeFiles()
	}
	return errors.Join(removeErr, closeErr)
}

func (m *Manager) removeFiles() error {
	var errs []error
	for _, p := range []string{m.pidFile, m.stateFile} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteState writes the daemon state.
func (m *Manager) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(m.stateFile, data, security.PermSecretFile)
}

// ReadState reads the daemon state.
func (m *Manager) ReadState() (*State, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// SignalStop asks the daemon to stop gracefully.
func (m *Manager) SignalStop() (int, error) {
	pid, err := m.ReadPID()
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("read PID: %w", err)
	}
	if !processAlive(pid) {
		return pid, ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("find process: %w", err)
	}
	if err := terminate(process); err != nil {
		return pid, fmt.Errorf("signal process %d: %w", pid, err)
	}
	return pid, nil
}

// WaitForStop polls until the daemon has exited or ctx is done.
func (m *Manager) WaitForStop(ctx context.Context, pid int) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !processAlive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon %d did not stop: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Status returns the current daemon status. A PID file naming a dead
// process is reported as Stale.
func (m *Manager) Status() (*Status, error) {
	status := &Status{}

	pid, err := m.ReadPID()
	switch {
	case err == nil:
		status.PID = pid
		status.Running = processAlive(pid)
		status.Stale = !status.Running
	case os.IsNotExist(err):
		return status, nil
	default:
		return nil, err
	}

	if state, err := m.ReadState(); err == nil && state.PID == pid {
		status.StartedAt = state.StartedAt
		status.CaptureFile = state.CaptureFile
		status.Source = state.Source
		if status.Running {
			status.Uptime = time.Since(state.StartedAt)
		}
	}
	return status, nil
}

// Cleanup removes PID and state files left by a dead daemon.
func (m *Manager) Cleanup() error {
	if m.IsRunning() {
		return ErrAlreadyRunning
	}
	return m.removeFiles()
}
