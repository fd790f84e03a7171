package main

import (
	"log/slog"
	"strings"

	"gtrainer/internal/ipc"
	"gtrainer/internal/resolver"
)

// handleIPCRequest serves control commands from other processes, such as a
// second launch asking this instance to come to the front.
func (a *App) handleIPCRequest(req ipc.Request) ipc.Response {
	if a.shuttingDown.Load() {
		return ipc.Errorf("shutting down")
	}
	switch req.Command {
	case ipc.CommandActivate:
		a.postUI(a.bringWindowToFront)
		return ipc.Response{OK: true}
	case ipc.CommandStatus:
		return ipc.Response{OK: true, Result: a.statusResult()}
	case ipc.CommandTrigger:
		if len(req.Args) != 1 {
			return ipc.Errorf("trigger takes exactly one action, got %d args", len(req.Args))
		}
		action := strings.TrimSpace(req.Args[0])
		if _, ok := a.table.Get(action); !ok {
			return ipc.Errorf("unknown action %q", action)
		}
		slog.Info("[INFO-IPC] action triggered remotely", "action", action)
		a.fireTrigger(resolver.Trigger{Action: action, Source: "ipc"})
		return ipc.Response{OK: true}
	default:
		return ipc.Errorf("unknown command %q", req.Command)
	}
}

func (a *App) statusResult() map[string]any {
	result := map[string]any{
		"listening": a.bus.IsListening(),
		"bindings":  len(a.table.List()),
		"hotkeys":   a.hotkeys.ActiveBindings(),
		"monitor":   a.GetWebSocketURL(),
		"gamepads":  a.GetConnectedGamepads(),
		"wheels":    a.GetConnectedWheelNames(),
	}
	return result
}
