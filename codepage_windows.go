//go:build windows

package main

import (
	"log/slog"

	"golang.org/x/sys/windows"
)

const codePageUTF8 = 65001

// setConsoleUTF8 switches an attached console to UTF-8 so slog output with
// device product names renders correctly.
func setConsoleUTF8() {
	if err := windows.SetConsoleOutputCP(codePageUTF8); err != nil {
		slog.Debug("[DEBUG-CONSOLE] SetConsoleOutputCP failed", "error", err)
	}
	if err := windows.SetConsoleCP(codePageUTF8); err != nil {
		slog.Debug("[DEBUG-CONSOLE] SetConsoleCP failed", "error", err)
	}
}
