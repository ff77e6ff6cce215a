// Package capture persists key events to timestamped plaintext files.
//
// A Session owns one capture file. Start creates it with owner-only
// permissions and writes a header line; every OnKeyDown appends one
// "<timestamp>\t<key>" record and flushes it; Stop writes a footer and
// closes the file. A Session is never restarted: Created -> Started ->
// Stopped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"keymeter/internal/keystroke"
	"keymeter/internal/logging"
	"keymeter/internal/security"
)

const (
	// DefaultDirName is the capture directory under the user's home.
	DefaultDirName = "keymeter_logs"

	// FilePrefix and FileExt frame capture file names.
	FilePrefix = "keystrokes_"
	FileExt    = ".txt"

	fileTimeLayout = "20060102_150405"

	// maxNameAttempts bounds the numeric suffixes tried when two sessions
	// start within the same second.
	maxNameAttempts = 100
)

// Errors returned by Start.
var (
	ErrCreateDir      = errors.New("capture: create output directory")
	ErrCreateFile     = errors.New("capture: create capture file")
	ErrAlreadyStarted = errors.New("capture: session already started")
	ErrStopped        = errors.New("capture: session stopped")
)

// State is the session lifecycle position.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Session.
type Options struct {
	// Dir is the output directory. Empty means ~/keymeter_logs.
	Dir string

	// Logger receives operational messages. Nil discards them.
	Logger *logging.Logger

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time

	// NoSync skips the fsync after each record. Records are still handed
	// to the kernel immediately.
	NoSync bool
}

// Stats counts what a session has written.
type Stats struct {
	Keystrokes uint64
	Dropped    uint64
}

// Session manages one capture file. All methods are safe for concurrent
// use; a single mutex serializes start, writes and stop.
type Session struct {
	mu        sync.Mutex
	dir       string
	path      string
	file      *os.File
	startedAt time.Time
	state     State
	stats     Stats

	logger *logging.Logger
	now    func() time.Time
	noSync bool
}

// New creates a session in the Created state. No file is touched until
// Start.
func New(opts Options) *Session {
	s := &Session{
		dir:    opts.Dir,
		logger: opts.Logger,
		now:    opts.Clock,
		noSync: opts.NoSync,
	}
	if s.dir == "" {
		s.dir = DefaultDir()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// DefaultDir returns ~/keymeter_logs, falling back to the temp dir when the
// home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), DefaultDirName)
	}
	return filepath.Join(home, DefaultDirName)
}

// Start creates the output directory and a new capture file and writes the
// header. On error the session stays in the Created state.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	if err := security.EnsureSecureDir(s.dir); err != nil {
		return fmt.Errorf("%w %s: %v", ErrCreateDir, s.dir, err)
	}

	now := s.now()
	f, path, err := createCaptureFile(s.dir, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreateFile, err)
	}

	if err := security.TryLockFile(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: lock %s: %v", ErrCreateFile, path, err)
	}

	if err := s.writeLocked(f, formatHeader(now)); err != nil {
		security.UnlockFile(f)
		f.Close()
		return fmt.Errorf("%w: write header: %v", ErrCreateFile, err)
	}

	s.file = f
	s.path = path
	s.startedAt = now
	s.state = StateStarted

	s.logger.Info("created capture file", "path", path)
	return nil
}

// createCaptureFile creates keystrokes_<YYYYMMDD_HHMMSS>.txt in dir, adding
// _1, _2, ... when the name is taken.
func createCaptureFile(dir string, t time.Time) (*os.File, string, error) {
	base := FilePrefix + t.Format(fileTimeLayout)
	var lastErr error
	for i := 0; i < maxNameAttempts; i++ {
		name := base + FileExt
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, FileExt)
		}
		path := filepath.Join(dir, name)

		f, err := security.CreateSecretFile(path)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func (s *Session) writeLocked(f *os.File, line string) error {
	if _, err := f.WriteString(line); err != nil {
		return err
	}
	if s.noSync {
		return nil
	}
	return f.Sync()
}

// OnKeyDown appends one record for ev. Events arriving before Start or
// after Stop are ignored. A failed write is logged and the event dropped;
// later events are still attempted.
func (s *Session) OnKeyDown(ev keystroke.KeyEvent) {
	if ev.IsZero() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStarted {
		return
	}

	if err := s.writeLocked(s.file, FormatLine(s.now(), ev)); err != nil {
		s.stats.Dropped++
		s.logger.Error("write keystroke", "path", s.path, "error", err, "dropped", s.stats.Dropped)
		return
	}
	s.stats.Keystrokes++
}

// OnKeyUp is a no-op; key releases are not recorded.
func (s *Session) OnKeyUp(keystroke.KeyEvent) {}

// Stop writes the footer and closes the file. It is idempotent. The session
// ends up Stopped even if writing the footer or closing fails; those errors
// are returned.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped:
		return nil
	case StateCreated:
		s.state = StateStopped
		return nil
	}

	f := s.file
	s.file = nil
	s.state = StateStopped

	var errs []error
	if err := s.writeLocked(f, formatFooter(s.now())); err != nil {
		errs = append(errs, fmt.Errorf("write footer: %w", err))
	}
	security.UnlockFile(f)
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture file: %w", err))
	}

	s.logger.Info("closed capture file",
		"path", s.path,
		"keystrokes", s.stats.Keystrokes,
		"dropped", s.stats.Dropped,
	)
	return errors.Join(errs...)
}

// Run starts the session if it is still Created (an already Started
// session is accepted), calls fn, and stops the session on every exit path,
// including panics. The returned error joins fn's error with Stop's.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	if err := s.Start(); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		return err
	}

	defer func() {
		err = errors.Join(err, s.Stop())
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s)
}

// Path returns the capture file path, or "" before Start.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Dir returns the output directory.
func (s *Session) Dir() string {
	return s.dir
}

// StartedAt returns the session start time, or the zero time before Start.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the write counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

var _ keystroke.Handler = (*Session)(nil)
