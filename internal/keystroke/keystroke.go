// Package keystroke turns OS keyboard input into normalized key events.
//
// A Source delivers key-down and key-up notifications to a Handler on
// goroutines the handler does not control. Each notification carries a
// KeyEvent that is either a literal character or a named symbolic key; the
// decision is made once, here, at the adapter boundary.
//
// Platform support:
//   - Linux: reads /dev/input/event* (requires the input group or root)
//   - Other platforms: no native source; use SimulatedSource
package keystroke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Kind tells a literal character apart from a named key.
type Kind int

const (
	KindInvalid Kind = iota
	KindLiteral
	KindSymbolic
)

// symbolicPrefix is stripped from symbolic names ("Key.enter" -> "enter").
const symbolicPrefix = "Key."

// KeyEvent is a normalized input event: Literal(char) or Symbolic(name).
// The zero value is invalid.
type KeyEvent struct {
	kind Kind
	char rune
	name string
}

// Literal returns a literal-character event. Control characters that would
// break a one-line record are mapped to their symbolic names.
func Literal(r rune) KeyEvent {
	switch r {
	case '\n', '\r':
		return Symbolic("enter")
	case '\t':
		return Symbolic("tab")
	case '\b', 0x7f:
		return Symbolic("backspace")
	case 0x1b:
		return Symbolic("esc")
	}
	if unicode.IsControl(r) {
		return Symbolic(fmt.Sprintf("u+%04x", r))
	}
	return KeyEvent{kind: KindLiteral, char: r}
}

// Symbolic returns a named-key event. Any "Key." prefix is removed and the
// name is lower-cased.
func Symbolic(name string) KeyEvent {
	name = strings.TrimPrefix(strings.TrimSpace(name), symbolicPrefix)
	name = strings.ToLower(name)
	if name == "" {
		name = "unknown"
	}
	return KeyEvent{kind: KindSymbolic, name: name}
}

// FromRune maps a typed rune to the event a keyboard would produce for it:
// whitespace and control characters become symbolic keys, everything else
// is literal.
func FromRune(r rune) KeyEvent {
	if r == ' ' {
		return Symbolic("space")
	}
	return Literal(r)
}

// ParseKey reads a key representation back: a single character is literal,
// anything longer is a symbolic name.
func ParseKey(s string) KeyEvent {
	rs := []rune(s)
	if len(rs) == 1 {
		return Literal(rs[0])
	}
	return Symbolic(s)
}

// Kind reports which variant k holds.
func (k KeyEvent) Kind() Kind { return k.kind }

// Char returns the character of a literal event.
func (k KeyEvent) Char() (rune, bool) {
	return k.char, k.kind == KindLiteral
}

// Name returns the bare name of a symbolic event.
func (k KeyEvent) Name() (string, bool) {
	return k.name, k.kind == KindSymbolic
}

// IsZero reports whether k is the invalid zero value.
func (k KeyEvent) IsZero() bool { return k.kind == KindInvalid }

// String returns the textual representation written to capture files.
func (k KeyEvent) String() string {
	switch k.kind {
	case KindLiteral:
		return string(k.char)
	case KindSymbolic:
		return k.name
	default:
		return ""
	}
}

// Handler receives key notifications. Implementations must be safe for
// concurrent use.
type Handler interface {
	OnKeyDown(KeyEvent)
	OnKeyUp(KeyEvent)
}

// Source is an OS-level producer of key events.
type Source interface {
	// Listen registers h and delivers events to it until ctx is done or
	// Stop is called. It returns nil on either of those.
	Listen(ctx context.Context, h Handler) error

	// Stop ends a running Listen. Safe to call when not listening.
	Stop() error

	// Available returns true if the source can read keyboard input with
	// current permissions, plus a human-readable reason.
	Available() (bool, string)

	// Name identifies the backend ("evdev", "simulated", ...).
	Name() string
}

// New creates a Source for the current platform.
func New() Source {
	return newPlatformSource(nil)
}

// NewWithDevices is New with an explicit list of device paths instead of
// autodetection. Platforms without device paths ignore the list.
func NewWithDevices(paths []string) Source {
	return newPlatformSource(paths)
}

// ErrNotAvailable is returned when no keyboard source exists on this platform.
var ErrNotAvailable = errors.New("keyboard capture not available on this platform")

// ErrPermissionDenied is returned when permissions are insufficient.
var ErrPermissionDenied = errors.New("insufficient permissions for keyboard capture")

// ErrAlreadyRunning is returned when Listen is called while already listening.
var ErrAlreadyRunning = errors.New("source already listening")

// BaseSource provides the running flag and cancellation shared by the
// platform sources.
type BaseSource struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func (b *BaseSource) begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, ErrAlreadyRunning
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	return ctx, nil
}

func (b *BaseSource) end() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.running = false
}

// Stop cancels a running Listen.
func (b *BaseSource) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// IsRunning returns the running state.
func (b *BaseSource) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
