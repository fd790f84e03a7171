package hotkeys

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	vkBack     VKey = 0x08
	vkTab      VKey = 0x09
	vkReturn   VKey = 0x0D
	vkShift    VKey = 0x10
	vkControl  VKey = 0x11
	vkMenu     VKey = 0x12
	vkPause    VKey = 0x13
	vkEscape   VKey = 0x1B
	vkSpace    VKey = 0x20
	vkPrior    VKey = 0x21
	vkNext     VKey = 0x22
	vkEnd      VKey = 0x23
	vkHome     VKey = 0x24
	vkLeft     VKey = 0x25
	vkUp       VKey = 0x26
	vkRight    VKey = 0x27
	vkDown     VKey = 0x28
	vkSnapshot VKey = 0x2C
	vkInsert   VKey = 0x2D
	vkDelete   VKey = 0x2E
	vkLWin     VKey = 0x5B
	vkRWin     VKey = 0x5C
	vkNumpad0  VKey = 0x60
	vkMultiply VKey = 0x6A
	vkAdd      VKey = 0x6B
	vkSubtract VKey = 0x6D
	vkDecimal  VKey = 0x6E
	vkDivide   VKey = 0x6F
	vkF1       VKey = 0x70
	vkF12      VKey = 0x7B
	vkF24      VKey = 0x87
	vkLShift   VKey = 0xA0
	vkRShift   VKey = 0xA1
	vkLControl VKey = 0xA2
	vkRControl VKey = 0xA3
	vkLMenu    VKey = 0xA4
	vkRMenu    VKey = 0xA5
	vkOem1     VKey = 0xBA
	vkOemPlus  VKey = 0xBB
	vkOemComma VKey = 0xBC
	vkOemMinus VKey = 0xBD
	vkOemDot   VKey = 0xBE
	vkOem2     VKey = 0xBF
	vkOem3     VKey = 0xC0
	vkOem4     VKey = 0xDB
	vkOem5     VKey = 0xDC
	vkOem6     VKey = 0xDD
	vkOem7     VKey = 0xDE
)

var modifierOrder = [...]Modifier{ModControl, ModAlt, ModShift, ModWin}

var modifierByName = map[string]Modifier{
	"CTRL":    ModControl,
	"CONTROL": ModControl,
	"SHIFT":   ModShift,
	"ALT":     ModAlt,
	"WIN":     ModWin,
	"SUPER":   ModWin,
}

// namedKeys holds the canonical name of every non-alphanumeric key.
// Aliases live in keyAliases.
var namedKeys = map[VKey]string{
	vkBack:     "BACKSPACE",
	vkTab:      "TAB",
	vkReturn:   "ENTER",
	vkPause:    "PAUSE",
	vkEscape:   "ESC",
	vkSpace:    "SPACE",
	vkPrior:    "PAGEUP",
	vkNext:     "PAGEDOWN",
	vkEnd:      "END",
	vkHome:     "HOME",
	vkLeft:     "LEFT",
	vkUp:       "UP",
	vkRight:    "RIGHT",
	vkDown:     "DOWN",
	vkSnapshot: "PRINTSCREEN",
	vkInsert:   "INSERT",
	vkDelete:   "DELETE",
	vkMultiply: "MULTIPLY",
	vkAdd:      "ADD",
	vkSubtract: "SUBTRACT",
	vkDecimal:  "DECIMAL",
	vkDivide:   "DIVIDE",
	vkOem1:     ";",
	vkOemPlus:  "=",
	vkOemComma: ",",
	vkOemMinus: "-",
	vkOemDot:   ".",
	vkOem2:     "/",
	vkOem3:     "`",
	vkOem4:     "[",
	vkOem5:     "\\",
	vkOem6:     "]",
	vkOem7:     "'",
}

var keyAliases = map[string]VKey{
	"RETURN":    vkReturn,
	"ESCAPE":    vkEscape,
	"PGUP":      vkPrior,
	"PGDN":      vkNext,
	"INS":       vkInsert,
	"DEL":       vkDelete,
	"BACKQUOTE": vkOem3,
	"GRAVE":     vkOem3,
	"SEMICOLON": vkOem1,
	"EQUALS":    vkOemPlus,
	"COMMA":     vkOemComma,
	"MINUS":     vkOemMinus,
	"PERIOD":    vkOemDot,
	"SLASH":     vkOem2,
	"LBRACKET":  vkOem4,
	"BACKSLASH": vkOem5,
	"RBRACKET":  vkOem6,
	"QUOTE":     vkOem7,
}

var keyByName = func() map[string]VKey {
	out := make(map[string]VKey, len(namedKeys)+len(keyAliases)+40)
	for key, name := range namedKeys {
		out[name] = key
	}
	for name, key := range keyAliases {
		out[name] = key
	}
	for key := vkF1; key <= vkF24; key++ {
		out[fmt.Sprintf("F%d", key-vkF1+1)] = key
	}
	for i := range VKey(10) {
		out[fmt.Sprintf("NUMPAD%d", i)] = vkNumpad0 + i
	}
	return out
}()

// ParseBinding parses a binding like "Ctrl+Shift+F12" or a bare key like "F5".
func ParseBinding(text string) (Binding, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Binding{}, fmt.Errorf("hotkey is empty")
	}

	parts := strings.Split(raw, "+")

	var modifiers Modifier
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Binding{}, fmt.Errorf("unknown modifier %q in hotkey %q", token, raw)
		}
		modifiers |= mod
	}

	keyToken := strings.TrimSpace(parts[len(parts)-1])
	if _, isMod := modifierByName[strings.ToUpper(keyToken)]; isMod {
		return Binding{}, fmt.Errorf("hotkey must include a non-modifier key: %s", raw)
	}
	key, err := parseKey(keyToken)
	if err != nil {
		return Binding{}, err
	}

	return Binding{
		modifiers:  modifiers,
		key:        key,
		normalized: Format(key, modifiers),
	}, nil
}

func parseKey(raw string) (VKey, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, fmt.Errorf("missing hotkey key token")
	}

	if key, ok := keyByName[token]; ok {
		return key, nil
	}

	if len(token) == 1 {
		ch := token[0]
		if ch >= 'A' && ch <= 'Z' {
			return VKey(ch), nil
		}
		if ch >= '0' && ch <= '9' {
			return VKey(ch), nil
		}
	}

	if strings.HasPrefix(token, "0X") {
		value, err := strconv.ParseUint(token[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid hex key %q", raw)
		}
		if value == 0 {
			return 0, fmt.Errorf("key code 0x0000 is not a valid virtual key")
		}
		if IsModifierKey(VKey(value)) {
			return 0, fmt.Errorf("hotkey must include a non-modifier key: %s", raw)
		}
		return VKey(value), nil
	}

	return 0, fmt.Errorf("unknown key %q in hotkey", raw)
}

func keyName(key VKey) string {
	if name, ok := namedKeys[key]; ok {
		return name
	}
	switch {
	case key >= 'A' && key <= 'Z', key >= '0' && key <= '9':
		return string(rune(key))
	case key >= vkF1 && key <= vkF24:
		return fmt.Sprintf("F%d", key-vkF1+1)
	case key >= vkNumpad0 && key <= vkNumpad0+9:
		return fmt.Sprintf("NUMPAD%d", key-vkNumpad0)
	}
	return fmt.Sprintf("0X%02X", uint32(key))
}

func normalizeModifierName(mod Modifier) string {
	switch mod {
	case ModControl:
		return "Ctrl"
	case ModShift:
		return "Shift"
	case ModAlt:
		return "Alt"
	case ModWin:
		return "Win"
	default:
		return "Mod"
	}
}
