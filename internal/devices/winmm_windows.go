//go:build windows

package devices

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"gtrainer/internal/input"
)

var (
	winmmDLL = windows.NewLazySystemDLL("winmm.dll")

	procJoyGetNumDevs  = winmmDLL.NewProc("joyGetNumDevs")
	procJoyGetDevCapsW = winmmDLL.NewProc("joyGetDevCapsW")
	procJoyGetPosEx    = winmmDLL.NewProc("joyGetPosEx")
)

const (
	joyErrNoError   = 0
	joyErrUnplugged = 167

	joyReturnAll   = 0x000000FF
	joyCapsHasPOV  = 0x0010
	joyPOVCentered = 0xFFFF

	maxJoyButtons = 32
)

// joyCapsW mirrors JOYCAPSW.
type joyCapsW struct {
	Mid        uint16
	Pid        uint16
	Pname      [32]uint16
	Xmin       uint32
	Xmax       uint32
	Ymin       uint32
	Ymax       uint32
	Zmin       uint32
	Zmax       uint32
	NumButtons uint32
	PeriodMin  uint32
	PeriodMax  uint32
	Rmin       uint32
	Rmax       uint32
	Umin       uint32
	Umax       uint32
	Vmin       uint32
	Vmax       uint32
	Caps       uint32
	MaxAxes    uint32
	NumAxes    uint32
	MaxButtons uint32
	RegKey     [32]uint16
	OEMVxD     [260]uint16
}

// joyInfoEx mirrors JOYINFOEX.
type joyInfoEx struct {
	Size         uint32
	Flags        uint32
	Xpos         uint32
	Ypos         uint32
	Zpos         uint32
	Rpos         uint32
	Upos         uint32
	Vpos         uint32
	Buttons      uint32
	ButtonNumber uint32
	POV          uint32
	Reserved1    uint32
	Reserved2    uint32
}

// WinMMEnumerator lists wheels through the winmm joystick API.
type WinMMEnumerator struct{}

// EnumerateWheels implements WheelEnumerator. Joystick IDs that do not answer
// joyGetPosEx are unplugged and skipped.
func (WinMMEnumerator) EnumerateWheels() ([]WheelDevice, error) {
	if err := procJoyGetNumDevs.Find(); err != nil {
		return nil, fmt.Errorf("winmm unavailable: %w", err)
	}
	n, _, _ := procJoyGetNumDevs.Call()
	var out []WheelDevice
	for id := range uint32(n) {
		var info joyInfoEx
		if joyGetPosEx(id, &info) != joyErrNoError {
			continue
		}
		var caps joyCapsW
		ret, _, _ := procJoyGetDevCapsW.Call(uintptr(id), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
		if ret != joyErrNoError {
			continue
		}
		// For HID devices wMid/wPid carry the USB VID/PID.
		hw := HardwareID{Vendor: caps.Mid, Product: caps.Pid}
		out = append(out, &winmmWheel{
			joyID:      id,
			id:         fmt.Sprintf("joy%d:%04x:%04x", id, caps.Mid, caps.Pid),
			name:       productName(hw, windows.UTF16ToString(caps.Pname[:])),
			hw:         hw,
			numButtons: int(min(caps.NumButtons, maxJoyButtons)),
			hasPOV:     caps.Caps&joyCapsHasPOV != 0,
		})
	}
	return out, nil
}

// oemKeyPrefix holds one subkey per VID_xxxx&PID_xxxx with the product name
// shown in the game controller control panel.
const oemKeyPrefix = `System\CurrentControlSet\Control\MediaProperties\PrivateProperties\Joystick\OEM\`

// productName looks up the OEM name of hw, per-user entries first. szPname
// is the generic driver string for HID controllers and is only a fallback.
func productName(hw HardwareID, fallback string) string {
	path := oemKeyPrefix + hw.String()
	for _, root := range []registry.Key{registry.CURRENT_USER, registry.LOCAL_MACHINE} {
		k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		name, _, err := k.GetStringValue("OEMName")
		_ = k.Close()
		if err == nil && name != "" {
			return name
		}
	}
	return fallback
}

func joyGetPosEx(id uint32, info *joyInfoEx) uintptr {
	info.Size = uint32(unsafe.Sizeof(*info))
	info.Flags = joyReturnAll
	ret, _, _ := procJoyGetPosEx.Call(uintptr(id), uintptr(unsafe.Pointer(info)))
	return ret
}

type winmmWheel struct {
	joyID      uint32
	id         string
	name       string
	hw         HardwareID
	numButtons int
	hasPOV     bool
	closed     atomic.Bool
}

func (w *winmmWheel) ID() string   { return w.id }
func (w *winmmWheel) Name() string { return w.name }

func (w *winmmWheel) Hardware() HardwareID { return w.hw }

func (w *winmmWheel) Read() (input.WheelState, error) {
	if w.closed.Load() {
		return input.WheelState{}, ErrNotConnected
	}
	var info joyInfoEx
	switch ret := joyGetPosEx(w.joyID, &info); ret {
	case joyErrNoError:
	case joyErrUnplugged:
		return input.WheelState{}, ErrNotConnected
	default:
		return input.WheelState{}, fmt.Errorf("joyGetPosEx(%d): mmresult %d", w.joyID, ret)
	}

	state := input.WheelState{Buttons: make([]bool, w.numButtons)}
	for i := range state.Buttons {
		state.Buttons[i] = info.Buttons&(1<<uint(i)) != 0
	}
	if w.hasPOV {
		pov := input.POVCentered
		if info.POV != joyPOVCentered {
			pov = int32(info.POV)
		}
		state.POV = []int32{pov}
	}
	return state, nil
}

// Close marks the handle unusable. winmm joysticks hold no OS handle.
func (w *winmmWheel) Close() error {
	w.closed.Store(true)
	return nil
}
