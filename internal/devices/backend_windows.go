//go:build windows

package devices

import "log/slog"

// PlatformBackends returns the XInput reader and winmm wheel enumerator.
// A missing XInput runtime disables gamepads but keeps wheels.
func PlatformBackends() (GamepadReader, WheelEnumerator) {
	reader, err := NewXInputReader()
	if err != nil {
		slog.Warn("[WARN-DEVICES] XInput unavailable, gamepads disabled", "error", err)
		return nil, WinMMEnumerator{}
	}
	return reader, WinMMEnumerator{}
}
