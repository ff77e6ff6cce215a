package keystroke

import (
	"fmt"
	"sync"
	"unicode"
)

// Linux input event constants (linux/input-event-codes.h).
const (
	evKey = 0x01

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2

	codeLeftShift  = 42
	codeRightShift = 54
	codeCapsLock   = 58
)

// printableKeys maps evdev key codes to their unshifted and shifted
// characters on a US layout.
var printableKeys = map[uint16][2]rune{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
}

// keypadKeys are printable regardless of shift state.
var keypadKeys = map[uint16]rune{
	55: '*', 71: '7', 72: '8', 73: '9', 74: '-', 75: '4', 76: '5', 77: '6',
	78: '+', 79: '1', 80: '2', 81: '3', 82: '0', 83: '.', 98: '/',
}

// namedKeys maps evdev key codes to symbolic names.
var namedKeys = map[uint16]string{
	1: "esc", 14: "backspace", 15: "tab", 28: "enter", 29: "ctrl_l",
	42: "shift", 54: "shift_r", 56: "alt_l", 57: "space", 58: "caps_lock",
	59: "f1", 60: "f2", 61: "f3", 62: "f4", 63: "f5", 64: "f6", 65: "f7",
	66: "f8", 67: "f9", 68: "f10", 69: "num_lock", 70: "scroll_lock",
	87: "f11", 88: "f12", 96: "enter", 97: "ctrl_r", 99: "print_screen",
	100: "alt_r", 102: "home", 103: "up", 104: "page_up", 105: "left",
	106: "right", 107: "end", 108: "down", 109: "page_down", 110: "insert",
	111: "delete", 113: "media_volume_mute", 114: "media_volume_down",
	115: "media_volume_up", 119: "pause", 125: "cmd", 126: "cmd_r", 127: "menu",
}

// Translator turns raw evdev key codes into KeyEvents, tracking shift and
// caps-lock state across calls. It is safe for concurrent use.
type Translator struct {
	mu         sync.Mutex
	leftShift  bool
	rightShift bool
	capsLock   bool
}

// Translate converts one EV_KEY event. down is true for presses and
// autorepeat, false for releases. ok is false for values the kernel does
// not define.
func (t *Translator) Translate(code uint16, value int32) (ev KeyEvent, down bool, ok bool) {
	if value != keyRelease && value != keyPress && value != keyRepeat {
		return KeyEvent{}, false, false
	}
	down = value != keyRelease

	t.mu.Lock()
	defer t.mu.Unlock()

	switch code {
	case codeLeftShift:
		t.leftShift = down
	case codeRightShift:
		t.rightShift = down
	case codeCapsLock:
		if value == keyPress {
			t.capsLock = !t.capsLock
		}
	}

	return t.lookup(code), down, true
}

func (t *Translator) lookup(code uint16) KeyEvent {
	if pair, ok := printableKeys[code]; ok {
		shifted := t.leftShift || t.rightShift
		if unicode.IsLetter(pair[0]) && t.capsLock {
			shifted = !shifted
		}
		if shifted {
			return Literal(pair[1])
		}
		return Literal(pair[0])
	}
	if r, ok := keypadKeys[code]; ok {
		return Literal(r)
	}
	if name, ok := namedKeys[code]; ok {
		return Symbolic(name)
	}
	return Symbolic(fmt.Sprintf("key_%d", code))
}
