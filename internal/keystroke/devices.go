package keystroke

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Event-type bits in the "B: EV=" capability mask.
const (
	evBitKey = 1 << 1
	evBitRep = 1 << 20
)

// Device describes one input device from /proc/bus/input/devices.
type Device struct {
	Name     string
	Phys     string
	Path     string // /dev/input/eventN
	Handlers []string
	EV       uint64

	// Readable is set by Devices when the current user can open Path.
	Readable bool
}

// IsKeyboard reports whether the device is a keyboard: bound to the kbd
// handler and able to emit key events with autorepeat. Power buttons and
// similar single-key devices lack autorepeat.
func (d Device) IsKeyboard() bool {
	hasKbd := false
	for _, h := range d.Handlers {
		if h == "kbd" {
			hasKbd = true
			break
		}
	}
	return hasKbd && d.Path != "" && d.EV&evBitKey != 0 && d.EV&evBitRep != 0
}

// parseInputDevices parses the /proc/bus/input/devices format. Blocks are
// separated by blank lines.
func parseInputDevices(r io.Reader) ([]Device, error) {
	var devices []Device
	var cur Device
	inBlock := false

	flush := func() {
		if inBlock {
			devices = append(devices, cur)
		}
		cur = Device{}
		inBlock = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		inBlock = true

		switch {
		case strings.HasPrefix(line, "N: Name="):
			cur.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "P: Phys="):
			cur.Phys = strings.TrimPrefix(line, "P: Phys=")
		case strings.HasPrefix(line, "H: Handlers="):
			cur.Handlers = strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
			for _, h := range cur.Handlers {
				if strings.HasPrefix(h, "event") {
					cur.Path = "/dev/input/" + h
				}
			}
		case strings.HasPrefix(line, "B: EV="):
			if v, err := strconv.ParseUint(strings.TrimPrefix(line, "B: EV="), 16, 64); err == nil {
				cur.EV = v
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return devices, nil
}
