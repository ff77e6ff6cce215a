//go:build !linux

package keystroke

import "context"

// StubSource is used on platforms without a native keyboard source.
type StubSource struct{}

func newPlatformSource([]string) Source {
	return StubSource{}
}

// Name returns "stub".
func (StubSource) Name() string { return "stub" }

// Available returns false on unsupported platforms.
func (StubSource) Available() (bool, string) {
	return false, "keyboard capture not implemented for this platform"
}

// Listen returns ErrNotAvailable.
func (StubSource) Listen(ctx context.Context, h Handler) error {
	return ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (StubSource) Stop() error {
	return nil
}

// Devices returns ErrNotAvailable on unsupported platforms.
func Devices() ([]Device, error) {
	return nil, ErrNotAvailable
}
