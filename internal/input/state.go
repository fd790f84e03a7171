package input

// XInput wButtons bits.
const (
	XInputDPadUp        uint16 = 0x0001
	XInputDPadDown      uint16 = 0x0002
	XInputDPadLeft      uint16 = 0x0004
	XInputDPadRight     uint16 = 0x0008
	XInputStart         uint16 = 0x0010
	XInputBack          uint16 = 0x0020
	XInputLeftThumb     uint16 = 0x0040
	XInputRightThumb    uint16 = 0x0080
	XInputLeftShoulder  uint16 = 0x0100
	XInputRightShoulder uint16 = 0x0200
	XInputA             uint16 = 0x1000
	XInputB             uint16 = 0x2000
	XInputX             uint16 = 0x4000
	XInputY             uint16 = 0x8000
)

// POVCentered is the neutral directional-pad position.
const POVCentered int32 = -1

// GamepadState is one sampled instant of an XInput pad.
type GamepadState struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
}

// Pressed reports whether every bit in mask is set.
func (s GamepadState) Pressed(mask uint16) bool {
	return mask != 0 && s.Buttons&mask == mask
}

// WheelState is one sampled instant of a steering wheel.
// Buttons and POV may be shorter than the device reports; missing entries
// read as released and centred.
type WheelState struct {
	Buttons []bool
	POV     []int32
}

// Button reports raw button i, treating out-of-range indices as released.
func (s WheelState) Button(i int) bool {
	if i < 0 || i >= len(s.Buttons) {
		return false
	}
	return s.Buttons[i]
}

// POVAngle returns POV hat i in hundredths of a degree, or POVCentered.
func (s WheelState) POVAngle(i int) int32 {
	if i < 0 || i >= len(s.POV) {
		return POVCentered
	}
	angle := s.POV[i]
	if angle < 0 || angle >= 36000 {
		return POVCentered
	}
	return angle
}

// Clone returns a copy that does not share slices with s.
func (s WheelState) Clone() WheelState {
	out := WheelState{}
	if s.Buttons != nil {
		out.Buttons = append([]bool(nil), s.Buttons...)
	}
	if s.POV != nil {
		out.POV = append([]int32(nil), s.POV...)
	}
	return out
}
