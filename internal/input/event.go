package input

import "fmt"

// MaxGamepadSlots is the number of XInput user slots.
const MaxGamepadSlots = 4

// SourceKind tags which device family produced an event.
type SourceKind uint8

const (
	SourceGamepad SourceKind = iota + 1
	SourceWheel
)

func (k SourceKind) String() string {
	switch k {
	case SourceGamepad:
		return "gamepad"
	case SourceWheel:
		return "wheel"
	default:
		return "unknown"
	}
}

// Source identifies the physical device behind an event.
// Slot is meaningful for SourceGamepad, Instance for SourceWheel.
type Source struct {
	Kind     SourceKind `json:"kind"`
	Slot     int        `json:"slot"`
	Instance string     `json:"instance,omitempty"`
}

// GamepadSource builds the Source for XInput slot.
func GamepadSource(slot int) Source {
	return Source{Kind: SourceGamepad, Slot: slot}
}

// WheelSource builds the Source for a wheel instance.
func WheelSource(instance string) Source {
	return Source{Kind: SourceWheel, Instance: instance}
}

// Family returns the button family a source produces.
func (s Source) Family() Family {
	switch s.Kind {
	case SourceGamepad:
		return FamilyGamepad
	case SourceWheel:
		return FamilyWheel
	default:
		return FamilyNone
	}
}

func (s Source) String() string {
	switch s.Kind {
	case SourceGamepad:
		return fmt.Sprintf("gamepad[%d]", s.Slot)
	case SourceWheel:
		return fmt.Sprintf("wheel[%s]", s.Instance)
	default:
		return "unknown"
	}
}

// ButtonEvent is one rising edge on one device.
type ButtonEvent struct {
	Source Source   `json:"source"`
	Button ButtonID `json:"button"`
}

func (e ButtonEvent) String() string {
	return e.Source.String() + ":" + e.Button.String()
}
