package bindings

import (
	"gtrainer/internal/hotkeys"
	"gtrainer/internal/input"
)

// Kind selects which input family a binding listens to.
type Kind uint8

const (
	KindUnbound Kind = iota
	KindKeyboard
	KindGamepad
	KindSteeringWheel
)

func (k Kind) String() string {
	switch k {
	case KindKeyboard:
		return "Keyboard"
	case KindGamepad:
		return "Gamepad"
	case KindSteeringWheel:
		return "Wheel"
	default:
		return "Unbound"
	}
}

// buttonFamily is the input family whose buttons a kind accepts.
func (k Kind) buttonFamily() input.Family {
	switch k {
	case KindGamepad:
		return input.FamilyGamepad
	case KindSteeringWheel:
		return input.FamilyWheel
	default:
		return input.FamilyNone
	}
}

// KindForFamily maps a button family to the binding kind that holds it.
func KindForFamily(f input.Family) Kind {
	switch f {
	case input.FamilyGamepad:
		return KindGamepad
	case input.FamilyWheel:
		return KindSteeringWheel
	default:
		return KindUnbound
	}
}

// Binding is one user-assignable action slot. Only the fields of the active
// Kind are populated; the others hold their zero values.
type Binding struct {
	Action    string           `json:"action"`
	Kind      Kind             `json:"kind"`
	Key       hotkeys.VKey     `json:"key"`
	Modifiers hotkeys.Modifier `json:"modifiers"`
	Button    input.ButtonID   `json:"button"`
}

// DisplayText renders the binding for the idle UI, e.g. "Keyboard: Ctrl+F1".
func (b Binding) DisplayText() string {
	switch b.Kind {
	case KindKeyboard:
		return "Keyboard: " + hotkeys.Format(b.Key, b.Modifiers)
	case KindGamepad:
		return "Gamepad: " + b.Button.String()
	case KindSteeringWheel:
		return "Wheel: " + b.Button.String()
	default:
		return "Unbound"
	}
}

// Hotkey returns the keyboard combination of a keyboard binding.
func (b Binding) Hotkey() (hotkeys.Binding, bool) {
	if b.Kind != KindKeyboard {
		return hotkeys.Binding{}, false
	}
	hk, err := hotkeys.NewBinding(b.Key, b.Modifiers)
	if err != nil {
		return hotkeys.Binding{}, false
	}
	return hk, true
}

func (b *Binding) setKeyboard(key hotkeys.VKey, mods hotkeys.Modifier) {
	b.Kind = KindKeyboard
	b.Key = key
	b.Modifiers = mods
	b.Button = input.ButtonNone
}

func (b *Binding) setButton(kind Kind, button input.ButtonID) {
	b.Kind = kind
	b.Key = 0
	b.Modifiers = 0
	b.Button = button
}

func (b *Binding) clear() {
	b.Kind = KindUnbound
	b.Key = 0
	b.Modifiers = 0
	b.Button = input.ButtonNone
}
