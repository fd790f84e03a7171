package input

import (
	"fmt"
	"strings"
)

// ButtonID identifies one gamepad or steering-wheel button.
// Gamepad and wheel values occupy disjoint ranges but share one namespace.
type ButtonID uint16

// ButtonNone is the unbound sentinel.
const ButtonNone ButtonID = 0

// Gamepad family.
const (
	ButtonA ButtonID = iota + 1
	ButtonB
	ButtonX
	ButtonY
	ButtonLeftShoulder
	ButtonRightShoulder
	ButtonLeftTrigger
	ButtonRightTrigger
	ButtonLeftThumb
	ButtonRightThumb
	ButtonDPadUp
	ButtonDPadDown
	ButtonDPadLeft
	ButtonDPadRight
	ButtonBack
	ButtonStart
)

// Wheel family.
const (
	WheelButton1 ButtonID = iota + 101
	WheelButton2
	WheelButton3
	WheelButton4
	WheelButton5
	WheelButton6
	WheelButton7
	WheelButton8
	WheelButton9
	WheelButton10
	WheelButton11
	WheelButton12
	WheelPaddleLeft
	WheelPaddleRight
	WheelStart
	WheelSelect
	WheelDPadUp
	WheelDPadRight
	WheelDPadDown
	WheelDPadLeft
)

const (
	firstGamepadButton = ButtonA
	lastGamepadButton  = ButtonStart
	firstWheelButton   = WheelButton1
	lastWheelButton    = WheelDPadLeft
)

// Family groups ButtonID values by the device class that produces them.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyGamepad
	FamilyWheel
)

func (f Family) String() string {
	switch f {
	case FamilyGamepad:
		return "gamepad"
	case FamilyWheel:
		return "wheel"
	default:
		return "none"
	}
}

var buttonNames = map[ButtonID]string{
	ButtonNone:          "None",
	ButtonA:             "A",
	ButtonB:             "B",
	ButtonX:             "X",
	ButtonY:             "Y",
	ButtonLeftShoulder:  "LeftShoulder",
	ButtonRightShoulder: "RightShoulder",
	ButtonLeftTrigger:   "LeftTrigger",
	ButtonRightTrigger:  "RightTrigger",
	ButtonLeftThumb:     "LeftThumb",
	ButtonRightThumb:    "RightThumb",
	ButtonDPadUp:        "DPadUp",
	ButtonDPadDown:      "DPadDown",
	ButtonDPadLeft:      "DPadLeft",
	ButtonDPadRight:     "DPadRight",
	ButtonBack:          "Back",
	ButtonStart:         "Start",
	WheelButton1:        "WheelButton1",
	WheelButton2:        "WheelButton2",
	WheelButton3:        "WheelButton3",
	WheelButton4:        "WheelButton4",
	WheelButton5:        "WheelButton5",
	WheelButton6:        "WheelButton6",
	WheelButton7:        "WheelButton7",
	WheelButton8:        "WheelButton8",
	WheelButton9:        "WheelButton9",
	WheelButton10:       "WheelButton10",
	WheelButton11:       "WheelButton11",
	WheelButton12:       "WheelButton12",
	WheelPaddleLeft:     "WheelPaddleLeft",
	WheelPaddleRight:    "WheelPaddleRight",
	WheelStart:          "WheelStart",
	WheelSelect:         "WheelSelect",
	WheelDPadUp:         "WheelDPadUp",
	WheelDPadRight:      "WheelDPadRight",
	WheelDPadDown:       "WheelDPadDown",
	WheelDPadLeft:       "WheelDPadLeft",
}

// buttonByName is keyed by upper-cased name for case-insensitive parsing.
var buttonByName = func() map[string]ButtonID {
	out := make(map[string]ButtonID, len(buttonNames))
	for id, name := range buttonNames {
		out[strings.ToUpper(name)] = id
	}
	return out
}()

// Family reports the device class of b. ButtonNone and unknown values
// return FamilyNone.
func (b ButtonID) Family() Family {
	switch {
	case b >= firstGamepadButton && b <= lastGamepadButton:
		return FamilyGamepad
	case b >= firstWheelButton && b <= lastWheelButton:
		return FamilyWheel
	default:
		return FamilyNone
	}
}

// Valid reports whether b is a known, bindable button.
func (b ButtonID) Valid() bool {
	return b.Family() != FamilyNone
}

func (b ButtonID) String() string {
	if name, ok := buttonNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Button(%d)", uint16(b))
}

// ParseButton resolves a button name (case-insensitive). An empty string
// parses as ButtonNone.
func ParseButton(name string) (ButtonID, error) {
	token := strings.ToUpper(strings.TrimSpace(name))
	if token == "" {
		return ButtonNone, nil
	}
	id, ok := buttonByName[token]
	if !ok {
		return ButtonNone, fmt.Errorf("unknown button %q", name)
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ButtonID) MarshalText() ([]byte, error) {
	if _, ok := buttonNames[b]; !ok {
		return nil, fmt.Errorf("cannot marshal unknown button %d", uint16(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ButtonID) UnmarshalText(text []byte) error {
	id, err := ParseButton(string(text))
	if err != nil {
		return err
	}
	*b = id
	return nil
}

// wheelButtonByIndex maps raw joystick button indices to wheel buttons.
// Indices past the end of the table are not bindable.
var wheelButtonByIndex = [...]ButtonID{
	WheelButton1, WheelButton2, WheelButton3, WheelButton4,
	WheelButton5, WheelButton6, WheelButton7, WheelButton8,
	WheelButton9, WheelButton10, WheelButton11, WheelButton12,
	WheelPaddleLeft, WheelPaddleRight, WheelStart, WheelSelect,
}

// MaxWheelButtons is the number of raw wheel button indices that map to a ButtonID.
const MaxWheelButtons = len(wheelButtonByIndex)

// WheelButtonAt returns the ButtonID for raw wheel button index i, or
// ButtonNone when i is out of range.
func WheelButtonAt(i int) ButtonID {
	if i < 0 || i >= len(wheelButtonByIndex) {
		return ButtonNone
	}
	return wheelButtonByIndex[i]
}
