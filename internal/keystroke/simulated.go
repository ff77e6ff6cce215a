package keystroke

import (
	"context"
	"sync"
)

// SimulatedSource is a source for tests and dry runs that doesn't hook the
// real keyboard. Events are injected with Press, Release and Type.
type SimulatedSource struct {
	BaseSource

	hmu     sync.RWMutex
	handler Handler
}

// NewSimulated creates a simulated source.
func NewSimulated() *SimulatedSource {
	return &SimulatedSource{}
}

// Name returns "simulated".
func (s *SimulatedSource) Name() string { return "simulated" }

// Available returns true (simulated is always available).
func (s *SimulatedSource) Available() (bool, string) {
	return true, "simulated source (no keyboard hook)"
}

// Listen blocks until ctx is done or Stop is called, delivering injected
// events to h meanwhile.
func (s *SimulatedSource) Listen(ctx context.Context, h Handler) error {
	ctx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer s.end()

	s.setHandler(h)
	defer s.setHandler(nil)

	<-ctx.Done()
	return nil
}

func (s *SimulatedSource) setHandler(h Handler) {
	s.hmu.Lock()
	s.handler = h
	s.hmu.Unlock()
}

// Listening reports whether a handler is registered.
func (s *SimulatedSource) Listening() bool {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.handler != nil
}

// Press delivers a key-down event. It returns false if nothing is listening.
func (s *SimulatedSource) Press(ev KeyEvent) bool {
	s.hmu.RLock()
	h := s.handler
	s.hmu.RUnlock()
	if h == nil {
		return false
	}
	h.OnKeyDown(ev)
	return true
}

// Release delivers a key-up event. It returns false if nothing is listening.
func (s *SimulatedSource) Release(ev KeyEvent) bool {
	s.hmu.RLock()
	h := s.handler
	s.hmu.RUnlock()
	if h == nil {
		return false
	}
	h.OnKeyUp(ev)
	return true
}

// Type presses and releases one key per rune of text and returns how many
// key presses were delivered.
func (s *SimulatedSource) Type(text string) int {
	n := 0
	for _, r := range text {
		ev := FromRune(r)
		if !s.Press(ev) {
			break
		}
		s.Release(ev)
		n++
	}
	return n
}
