//go:build !windows

package devices

import "log/slog"

// PlatformBackends returns no backends outside Windows; the poller runs with
// zero devices.
func PlatformBackends() (GamepadReader, WheelEnumerator) {
	slog.Warn("[WARN-DEVICES] device input is only supported on Windows")
	return nil, nil
}
