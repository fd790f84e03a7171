package hotkeys

import (
	"fmt"
	"strings"
)

// Modifier represents a Win32 hotkey modifier bitmask.
type Modifier uint32

// VKey represents a Win32 virtual-key code.
type VKey uint32

// Win32 MOD_* values.
const (
	ModAlt     Modifier = 0x0001
	ModControl Modifier = 0x0002
	ModShift   Modifier = 0x0004
	ModWin     Modifier = 0x0008

	modMask = ModAlt | ModControl | ModShift | ModWin
)

// Binding describes a parsed global hotkey.
// Construct via ParseBinding or NewBinding to guarantee invariant consistency.
type Binding struct {
	modifiers  Modifier
	key        VKey
	normalized string
}

// NewBinding builds a binding from a captured key and modifier mask.
// Bits outside the four known modifiers are dropped.
func NewBinding(key VKey, mods Modifier) (Binding, error) {
	if key == 0 {
		return Binding{}, fmt.Errorf("key code 0x0000 is not a valid virtual key")
	}
	if IsModifierKey(key) {
		return Binding{}, fmt.Errorf("modifier key 0x%02X cannot be bound on its own", uint32(key))
	}
	mods &= modMask
	return Binding{modifiers: mods, key: key, normalized: Format(key, mods)}, nil
}

// Modifiers returns the modifier bitmask.
func (b Binding) Modifiers() Modifier { return b.modifiers }

// Key returns the virtual-key code.
func (b Binding) Key() VKey { return b.key }

// Normalized returns the canonical human-readable binding string.
func (b Binding) Normalized() string { return b.normalized }

// IsZero reports whether b holds no key.
func (b Binding) IsZero() bool { return b.key == 0 }

// Format renders key and mods in canonical Ctrl+Alt+Shift+Win+Key order.
// The result parses back to the same key and mask.
func Format(key VKey, mods Modifier) string {
	var parts []string
	for _, mod := range modifierOrder {
		if mods&mod != 0 {
			parts = append(parts, normalizeModifierName(mod))
		}
	}
	parts = append(parts, keyName(key))
	return strings.Join(parts, "+")
}

// IsModifierKey reports whether key is a bare Ctrl, Alt, Shift or Win key,
// including their left/right variants.
func IsModifierKey(key VKey) bool {
	switch key {
	case vkShift, vkControl, vkMenu,
		vkLShift, vkRShift, vkLControl, vkRControl, vkLMenu, vkRMenu,
		vkLWin, vkRWin:
		return true
	}
	return false
}
