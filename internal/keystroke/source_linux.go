//go:build linux

package keystroke

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

const procInputDevices = "/proc/bus/input/devices"

// EvdevSource reads keyboards through /dev/input/event*.
type EvdevSource struct {
	BaseSource

	// Paths overrides device discovery when non-empty.
	Paths []string
}

func newPlatformSource(paths []string) Source {
	return &EvdevSource{Paths: paths}
}

// Name returns "evdev".
func (e *EvdevSource) Name() string { return "evdev" }

// Available checks if we can read input devices.
func (e *EvdevSource) Available() (bool, string) {
	paths, err := e.devicePaths()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(paths) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range paths {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

// Devices lists the input devices the kernel reports, marking which ones
// the current user can read.
func Devices() ([]Device, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	devices, err := parseInputDevices(f)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Path == "" {
			continue
		}
		if df, err := os.OpenFile(devices[i].Path, os.O_RDONLY, 0); err == nil {
			df.Close()
			devices[i].Readable = true
		}
	}
	return devices, nil
}

func (e *EvdevSource) devicePaths() ([]string, error) {
	if len(e.Paths) > 0 {
		return e.Paths, nil
	}

	devices, err := Devices()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			resolved = p
		}
		if !seen[resolved] {
			seen[resolved] = true
			paths = append(paths, resolved)
		}
	}
	for _, d := range devices {
		if d.IsKeyboard() {
			add(d.Path)
		}
	}

	// Also check by name pattern
	matches, _ := filepath.Glob("/dev/input/by-id/*-event-kbd")
	for _, m := range matches {
		add(m)
	}
	return paths, nil
}

// inputEvent matches the Linux input_event struct.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Listen opens every readable keyboard and delivers its key events to h.
// Each device is read on its own goroutine.
func (e *EvdevSource) Listen(ctx context.Context, h Handler) error {
	paths, err := e.devicePaths()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if len(paths) == 0 {
		return ErrNotAvailable
	}

	var files []*os.File
	var lastErr error
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			lastErr = err
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, lastErr)
	}

	ctx, err = e.begin(ctx)
	if err != nil {
		for _, f := range files {
			f.Close()
		}
		return err
	}

	// Closing the files unblocks the readers.
	closed := make(chan struct{})
	go func() {
		<-ctx.Done()
		for _, f := range files {
			f.Close()
		}
		close(closed)
	}()

	tr := &Translator{}
	var wg sync.WaitGroup
	for _, f := range files {
		wg.Add(1)
		go func(f *os.File) {
			defer wg.Done()
			readDevice(f, tr, h)
		}(f)
	}
	wg.Wait()

	stopped := ctx.Err() != nil
	e.end()
	<-closed

	if !stopped {
		return errors.New("all keyboard devices closed")
	}
	return nil
}

func readDevice(f *os.File, tr *Translator, h Handler) {
	buf := make([]byte, binary.Size(inputEvent{}))
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			// Closed by Listen, or the device went away.
			return
		}

		var ev inputEvent
		if err := binary.Read(bytes.NewReader(buf), binary.NativeEndian, &ev); err != nil {
			continue
		}
		if ev.Type != evKey {
			continue
		}

		key, down, ok := tr.Translate(ev.Code, ev.Value)
		if !ok {
			continue
		}
		if down {
			h.OnKeyDown(key)
		} else {
			h.OnKeyUp(key)
		}
	}
}
