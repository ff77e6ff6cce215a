// Package logging provides structured logging with slog for keymeter.
//
// Features:
//   - JSON and text output formats
//   - Log levels adjustable at runtime
//   - Sensitive attribute redaction (key contents never reach the log)
//   - Size-based log rotation
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written.
	// Can be "stdout", "stderr", "file", or "both" (stderr and file).
	Output string

	// FilePath is the path to the log file when Output includes "file".
	FilePath string

	// MaxSize is the maximum size of a log file in megabytes before rotation.
	MaxSize int64

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is the name of the component using this logger.
	Component string

	// Writer, when set, replaces the writers selected by Output.
	Writer io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "both",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxBackups: 3,
		Component:  "keymeter",
	}
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "keymeter_logs", "keymeter.log")
	}
	return filepath.Join(home, "keymeter_logs", "keymeter.log")
}

// Logger wraps slog.Logger with a runtime-adjustable level and an optional
// rotating file.
type Logger struct {
	*slog.Logger
	config  *Config
	level   *slog.LevelVar
	rotator *FileRotator
	mu      sync.Mutex
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config: cfg,
		level:  new(slog.LevelVar),
	}
	l.level.Set(cfg.Level)

	writers, err := l.setupWriters()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{
		Level:     l.level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// Nop returns a logger that discards everything. Used when a caller does
// not supply one.
func Nop() *Logger {
	l, _ := New(&Config{Level: LevelError, Writer: io.Discard})
	return l
}

func (l *Logger) setupWriters() ([]io.Writer, error) {
	if l.config.Writer != nil {
		return []io.Writer{l.config.Writer}, nil
	}

	var writers []io.Writer
	switch strings.ToLower(l.config.Output) {
	case "stdout":
		writers = append(writers, os.Stdout)
	case "file", "both":
		rotator, err := NewFileRotator(l.config)
		if err != nil {
			return nil, err
		}
		l.rotator = rotator
		if strings.EqualFold(l.config.Output, "both") {
			writers = append(writers, os.Stderr)
		}
		writers = append(writers, rotator)
	default:
		writers = append(writers, os.Stderr)
	}
	return writers, nil
}

// redactedKeys are attribute keys whose values never reach the log. A key
// matches when it equals an entry or ends in "_" plus an entry.
var redactedKeys = []string{
	"password", "secret", "token", "credential", "cookie",
	"key", "char", "text",
}

// shouldRedact checks if an attribute key contains sensitive data.
func shouldRedact(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range redactedKeys {
		if keyLower == sensitive || strings.HasSuffix(keyLower, "_"+sensitive) {
			return true
		}
	}
	return false
}

// WithComponent returns a new logger with a different component name.
// The child shares the parent's level and file.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		config:  l.config,
		level:   l.level,
		rotator: l.rotator,
	}
}

// SetLevel changes the minimum level of this logger and all loggers derived
// from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return l.level.Level()
}

// FilePath returns the log file path, or "" when not logging to a file.
func (l *Logger) FilePath() string {
	if l.rotator == nil {
		return ""
	}
	return l.config.FilePath
}

// Close closes any open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// LevelString returns the string representation of a log level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}
