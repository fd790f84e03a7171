//go:build windows

package devices

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"gtrainer/internal/input"
)

// errorDeviceNotConnected is ERROR_DEVICE_NOT_CONNECTED.
const errorDeviceNotConnected = 1167

// xinputGamepad mirrors XINPUT_GAMEPAD.
type xinputGamepad struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

// xinputState mirrors XINPUT_STATE.
type xinputState struct {
	PacketNumber uint32
	Gamepad      xinputGamepad
}

// XInputReader reads pads through XInputGetState.
type XInputReader struct {
	proc *windows.LazyProc
}

// xinputDLLs lists the runtimes to try, newest first. xinput9_1_0 ships with
// every Windows version since Vista.
var xinputDLLs = []string{"xinput1_4.dll", "xinput9_1_0.dll"}

// NewXInputReader loads the first available XInput runtime.
func NewXInputReader() (*XInputReader, error) {
	var errs []error
	for _, name := range xinputDLLs {
		dll := windows.NewLazySystemDLL(name)
		if err := dll.Load(); err != nil {
			errs = append(errs, err)
			continue
		}
		proc := dll.NewProc("XInputGetState")
		if err := proc.Find(); err != nil {
			errs = append(errs, err)
			continue
		}
		return &XInputReader{proc: proc}, nil
	}
	return nil, fmt.Errorf("load xinput: %w", errors.Join(errs...))
}

// ReadGamepad implements GamepadReader.
func (r *XInputReader) ReadGamepad(slot int) (input.GamepadState, error) {
	if slot < 0 || slot >= input.MaxGamepadSlots {
		return input.GamepadState{}, fmt.Errorf("xinput slot %d out of range", slot)
	}
	var st xinputState
	ret, _, _ := r.proc.Call(uintptr(slot), uintptr(unsafe.Pointer(&st)))
	switch ret {
	case 0:
		return input.GamepadState{
			Buttons:      st.Gamepad.Buttons,
			LeftTrigger:  st.Gamepad.LeftTrigger,
			RightTrigger: st.Gamepad.RightTrigger,
		}, nil
	case errorDeviceNotConnected:
		return input.GamepadState{}, ErrNotConnected
	default:
		return input.GamepadState{}, fmt.Errorf("XInputGetState(%d): %w", slot, windows.Errno(ret))
	}
}
