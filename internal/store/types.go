// Package store provides the SQLite session catalog for keymeter.
//
// The catalog indexes capture sessions: which file, when, from which
// source, and how many key presses were written or dropped. It never
// stores key contents.
package store

import "time"

// SessionRecord is one capture session in the catalog.
type SessionRecord struct {
	ID         string
	Path       string
	Source     string
	PID        int
	StartedAt  time.Time
	StoppedAt  *time.Time
	Keystrokes uint64
	Dropped    uint64
}

// Active reports whether the session has not been finished.
func (r *SessionRecord) Active() bool {
	return r.StoppedAt == nil
}

// Duration returns how long the session ran, measured to now for active
// sessions.
func (r *SessionRecord) Duration(now time.Time) time.Duration {
	if r.StoppedAt != nil {
		return r.StoppedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Totals aggregates the catalog.
type Totals struct {
	Sessions   int
	Active     int
	Keystrokes uint64
	Dropped    uint64
}
