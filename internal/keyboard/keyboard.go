// Package keyboard attaches a process-wide low-level keyboard hook used while
// a capture session waits for a key.
package keyboard

import (
	"errors"
	"log/slog"

	"gtrainer/internal/hotkeys"
)

var (
	// ErrUnsupported is returned by Attach on platforms without a global hook.
	ErrUnsupported = errors.New("keyboard hook is not supported on this platform")
	// ErrHookBusy reports that another Hook in this process is attached.
	ErrHookBusy = errors.New("keyboard hook already attached elsewhere")
)

// Event is one key transition observed by the hook.
// Modifiers is the set of modifier keys held when the transition happened.
type Event struct {
	Key       hotkeys.VKey
	Modifiers hotkeys.Modifier
	Down      bool
}

// Handler receives hook events on the hook thread. It must return quickly;
// Windows drops the hook if a callback stalls.
type Handler func(Event)

const (
	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkLWin    = 0x5B
	vkRWin    = 0x5C
)

// modifiersFrom builds the modifier mask from a key-state query.
func modifiersFrom(down func(vk int) bool) hotkeys.Modifier {
	var mods hotkeys.Modifier
	if down(vkControl) {
		mods |= hotkeys.ModControl
	}
	if down(vkMenu) {
		mods |= hotkeys.ModAlt
	}
	if down(vkShift) {
		mods |= hotkeys.ModShift
	}
	if down(vkLWin) || down(vkRWin) {
		mods |= hotkeys.ModWin
	}
	return mods
}

func dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ERROR-KEYBOARD] hook handler panicked", "key", ev.Key, "panic", r)
		}
	}()
	h(ev)
}
