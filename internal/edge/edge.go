// Package edge turns consecutive device snapshots into rising-edge button events.
//
// Every function here is pure: the same (prev, cur) pair always yields the
// same events in the same order.
package edge

import "gtrainer/internal/input"

// TriggerThreshold is the analog trigger magnitude above which a trigger
// counts as pressed.
const TriggerThreshold uint8 = 128

// Direction is a bucketed POV position.
type Direction uint8

const (
	DirNone Direction = iota
	DirUp
	DirRight
	DirDown
	DirLeft
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirRight:
		return "right"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	default:
		return "none"
	}
}

var gamepadDigital = [...]struct {
	mask   uint16
	button input.ButtonID
}{
	{input.XInputA, input.ButtonA},
	{input.XInputB, input.ButtonB},
	{input.XInputX, input.ButtonX},
	{input.XInputY, input.ButtonY},
	{input.XInputLeftShoulder, input.ButtonLeftShoulder},
	{input.XInputRightShoulder, input.ButtonRightShoulder},
	{input.XInputLeftThumb, input.ButtonLeftThumb},
	{input.XInputRightThumb, input.ButtonRightThumb},
	{input.XInputDPadUp, input.ButtonDPadUp},
	{input.XInputDPadDown, input.ButtonDPadDown},
	{input.XInputDPadLeft, input.ButtonDPadLeft},
	{input.XInputDPadRight, input.ButtonDPadRight},
	{input.XInputBack, input.ButtonBack},
	{input.XInputStart, input.ButtonStart},
}

// Gamepad reports the buttons of slot that went from released to pressed.
// Triggers are emitted after the digital buttons, left before right.
func Gamepad(slot int, prev, cur input.GamepadState) []input.ButtonEvent {
	src := input.GamepadSource(slot)
	var out []input.ButtonEvent
	for _, d := range gamepadDigital {
		if !prev.Pressed(d.mask) && cur.Pressed(d.mask) {
			out = append(out, input.ButtonEvent{Source: src, Button: d.button})
		}
	}
	if triggerRose(prev.LeftTrigger, cur.LeftTrigger) {
		out = append(out, input.ButtonEvent{Source: src, Button: input.ButtonLeftTrigger})
	}
	if triggerRose(prev.RightTrigger, cur.RightTrigger) {
		out = append(out, input.ButtonEvent{Source: src, Button: input.ButtonRightTrigger})
	}
	return out
}

func triggerRose(prev, cur uint8) bool {
	return prev <= TriggerThreshold && cur > TriggerThreshold
}

// Wheel reports the buttons of a wheel instance that went from released to
// pressed. Numbered buttons come first in index order, then the first POV hat.
// Indices missing from either snapshot read as released.
func Wheel(instance string, prev, cur input.WheelState) []input.ButtonEvent {
	src := input.WheelSource(instance)
	var out []input.ButtonEvent
	for i := range input.MaxWheelButtons {
		if !prev.Button(i) && cur.Button(i) {
			out = append(out, input.ButtonEvent{Source: src, Button: input.WheelButtonAt(i)})
		}
	}
	before := POVDirection(prev.POVAngle(0))
	after := POVDirection(cur.POVAngle(0))
	if after != before {
		if b := wheelDPadButton(after); b != input.ButtonNone {
			out = append(out, input.ButtonEvent{Source: src, Button: b})
		}
	}
	return out
}

// POVDirection buckets an angle in hundredths of a degree. Up spans the
// wrap-around point. Negative or out-of-range angles are centred.
func POVDirection(angle int32) Direction {
	switch {
	case angle < 0 || angle >= 36000:
		return DirNone
	case angle >= 31500 || angle < 4500:
		return DirUp
	case angle < 13500:
		return DirRight
	case angle < 22500:
		return DirDown
	default:
		return DirLeft
	}
}

func wheelDPadButton(d Direction) input.ButtonID {
	switch d {
	case DirUp:
		return input.WheelDPadUp
	case DirRight:
		return input.WheelDPadRight
	case DirDown:
		return input.WheelDPadDown
	case DirLeft:
		return input.WheelDPadLeft
	default:
		return input.ButtonNone
	}
}
