package keystroke

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func press(t *testing.T, tr *Translator, code uint16) string {
	t.Helper()
	ev, down, ok := tr.Translate(code, keyPress)
	assert.True(t, ok)
	assert.True(t, down)
	return ev.String()
}

func release(t *testing.T, tr *Translator, code uint16) {
	t.Helper()
	_, down, ok := tr.Translate(code, keyRelease)
	assert.True(t, ok)
	assert.False(t, down)
}

func TestTranslatePlain(t *testing.T) {
	tr := &Translator{}
	assert.Equal(t, "h", press(t, tr, 35))
	assert.Equal(t, "1", press(t, tr, 2))
	assert.Equal(t, "space", press(t, tr, 57))
	assert.Equal(t, "enter", press(t, tr, 28))
	assert.Equal(t, "backspace", press(t, tr, 14))
	assert.Equal(t, "f5", press(t, tr, 63))
	assert.Equal(t, "7", press(t, tr, 71))
	assert.Equal(t, "key_240", press(t, tr, 240))
}

func TestTranslateShift(t *testing.T) {
	tr := &Translator{}
	assert.Equal(t, "shift", press(t, tr, codeLeftShift))
	assert.Equal(t, "H", press(t, tr, 35))
	assert.Equal(t, "!", press(t, tr, 2))
	release(t, tr, codeLeftShift)
	assert.Equal(t, "h", press(t, tr, 35))

	assert.Equal(t, "shift_r", press(t, tr, codeRightShift))
	assert.Equal(t, "?", press(t, tr, 53))
	release(t, tr, codeRightShift)
	assert.Equal(t, "/", press(t, tr, 53))
}

func TestTranslateCapsLock(t *testing.T) {
	tr := &Translator{}
	assert.Equal(t, "caps_lock", press(t, tr, codeCapsLock))
	release(t, tr, codeCapsLock)

	assert.Equal(t, "A", press(t, tr, 30))
	assert.Equal(t, "1", press(t, tr, 2), "caps lock leaves digits alone")

	press(t, tr, codeLeftShift)
	assert.Equal(t, "a", press(t, tr, 30), "shift inverts caps lock for letters")
	assert.Equal(t, "!", press(t, tr, 2))
	release(t, tr, codeLeftShift)

	// Autorepeat of caps lock must not toggle.
	_, _, ok := tr.Translate(codeCapsLock, keyRepeat)
	assert.True(t, ok)
	assert.Equal(t, "A", press(t, tr, 30))

	press(t, tr, codeCapsLock)
	assert.Equal(t, "a", press(t, tr, 30))
}

func TestTranslateRepeatIsDown(t *testing.T) {
	tr := &Translator{}
	ev, down, ok := tr.Translate(30, keyRepeat)
	assert.True(t, ok)
	assert.True(t, down)
	assert.Equal(t, "a", ev.String())
}

func TestTranslateUnknownValue(t *testing.T) {
	tr := &Translator{}
	_, _, ok := tr.Translate(30, 7)
	assert.False(t, ok)
}
