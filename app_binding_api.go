package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gtrainer/internal/bindings"
	"gtrainer/internal/capture"
	"gtrainer/internal/config"
)

// BindingView is one row of the bindings list.
type BindingView struct {
	Action string `json:"action"`
	// Kind is "unbound", "keyboard", "gamepad" or "wheel".
	Kind string `json:"kind"`
	// Input is the key combination or button name, empty when unbound.
	Input   string `json:"input"`
	Display string `json:"display"`
}

func bindingViews(records []config.BindingRecord, list []bindings.Binding) []BindingView {
	out := make([]BindingView, 0, len(list))
	for i, b := range list {
		view := BindingView{Action: b.Action, Kind: config.KindUnbound, Display: b.DisplayText()}
		if i < len(records) && records[i].Action == b.Action {
			view.Kind = records[i].Kind
			view.Input = records[i].Key + records[i].Button
		}
		out = append(out, view)
	}
	return out
}

// ListBindings returns every binding in display order.
func (a *App) ListBindings() []BindingView {
	// Records and List share table order; both are snapshots.
	return bindingViews(a.table.Records(), a.table.List())
}

// BeginCapture arms a capture session for action. mode is "keyboard",
// "gamepad", "wheel" or "unified" (empty means unified). Calling it while a
// session is armed cancels that session and returns false.
func (a *App) BeginCapture(action string, mode string) (bool, error) {
	if a.capture == nil {
		return false, errors.New("input capture is unavailable")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return false, errors.New("action is required")
	}
	parsed, err := capture.ParseMode(mode)
	if err != nil {
		return false, err
	}

	var armed bool
	var beginErr error
	if err := a.onUI(func() {
		armed, beginErr = a.capture.Begin(action, parsed)
	}); err != nil {
		return false, fmt.Errorf("begin capture: %w", err)
	}
	if beginErr != nil {
		slog.Info("[INFO-CAPTURE] capture not armed", "action", action, "mode", parsed.String(), "error", beginErr)
	}
	return armed, beginErr
}

// CancelCapture ends the armed session, if any, and reports whether one was armed.
func (a *App) CancelCapture() (bool, error) {
	if a.capture == nil {
		return false, nil
	}
	var cancelled bool
	if err := a.onUI(func() { cancelled = a.capture.Cancel() }); err != nil {
		return false, fmt.Errorf("cancel capture: %w", err)
	}
	return cancelled, nil
}

// GetActiveCapture returns the armed session, or nil when idle.
func (a *App) GetActiveCapture() (*capture.Session, error) {
	if a.capture == nil {
		return nil, nil
	}
	var current *capture.Session
	if err := a.onUI(func() {
		if s, ok := a.capture.Current(); ok {
			current = &s
		}
	}); err != nil {
		return nil, fmt.Errorf("read capture state: %w", err)
	}
	return current, nil
}

// ClearBinding resets action to unbound and persists the table.
func (a *App) ClearBinding(action string) error {
	var clearErr error
	if err := a.onUI(func() {
		if clearErr = a.table.Clear(action); clearErr == nil {
			a.bindingsChanged()
		}
	}); err != nil {
		return fmt.Errorf("clear binding: %w", err)
	}
	return clearErr
}

// SaveBindings writes the current table to the config file.
func (a *App) SaveBindings() error {
	return a.persistBindings()
}

// GetConnectedGamepads returns the XInput slots with a pad attached.
func (a *App) GetConnectedGamepads() []int {
	if a.poller == nil {
		return nil
	}
	return a.poller.ConnectedGamepads()
}

// GetConnectedWheelNames returns the product names of attached wheels.
func (a *App) GetConnectedWheelNames() []string {
	if a.poller == nil {
		return nil
	}
	return a.poller.ConnectedWheelNames()
}

// RefreshDevices rescans for wheels plugged in after startup and returns
// how many were added.
func (a *App) RefreshDevices() int {
	if a.poller == nil {
		return 0
	}
	added := a.poller.RefreshWheels()
	slog.Info("[INFO-DEVICES] wheel rescan", "added", added, "wheels", a.poller.ConnectedWheelNames())
	return added
}

// bindingsChanged re-registers hotkeys, persists the table and notifies the
// frontend. It runs on the UI loop after every table mutation.
func (a *App) bindingsChanged() {
	a.registerHotkeys()
	if err := a.persistBindings(); err != nil {
		slog.Warn("[WARN-BINDINGS] failed to persist bindings", "error", err)
	}
	a.emitRuntimeEvent(eventBindingsUpdated, a.ListBindings())
}

// persistBindings stores table records into the config file. Without a
// config path only the in-memory snapshot is updated.
func (a *App) persistBindings() error {
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	cfg := a.getConfigSnapshot()
	cfg.Bindings = a.table.Records()
	if a.configPath == "" {
		a.setConfigSnapshot(cfg)
		return nil
	}
	normalized, err := config.Save(a.configPath, cfg)
	if err != nil {
		return fmt.Errorf("save bindings: %w", err)
	}
	a.setConfigSnapshot(normalized)
	return nil
}

// loadBindings replaces the table from records. Bad records become unbound
// entries and surface as a startup warning.
func (a *App) loadBindings(records []config.BindingRecord) {
	err := a.table.Load(records)
	a.table.Ensure(config.ActionToggleWindow)
	if err != nil {
		a.addPendingConfigLoadWarning("Some bindings could not be loaded and were reset: " + err.Error())
	}
}
