// Package resolver maps runtime input to bound actions.
package resolver

import (
	"log/slog"

	"gtrainer/internal/hotkeys"
	"gtrainer/internal/input"
)

// Lookup is the read side of the binding table.
type Lookup interface {
	OwnerOfKey(key hotkeys.VKey, mods hotkeys.Modifier) (string, bool)
	OwnerOfButton(button input.ButtonID) (string, bool)
}

// Trigger is one resolved activation.
type Trigger struct {
	Action string `json:"action"`
	// Source names the device, for example "keyboard" or "gamepad[0]".
	Source string `json:"source"`
	// Input is the key combination or button name that fired.
	Input string `json:"input"`
}

// Resolver fires the action bound to each input. All input is ignored while
// listening reports true, so a capture in progress never triggers actions.
type Resolver struct {
	table     Lookup
	listening func() bool
	fire      func(Trigger)
}

// New returns a resolver. listening may be nil.
func New(table Lookup, listening func() bool, fire func(Trigger)) *Resolver {
	if listening == nil {
		listening = func() bool { return false }
	}
	return &Resolver{table: table, listening: listening, fire: fire}
}

// HandleButton resolves a rising edge from the device bus.
func (r *Resolver) HandleButton(ev input.ButtonEvent) {
	if r.listening() {
		return
	}
	action, ok := r.table.OwnerOfButton(ev.Button)
	if !ok {
		return
	}
	r.emit(Trigger{Action: action, Source: ev.Source.String(), Input: ev.Button.String()})
}

// HandleHotkey resolves a global hotkey press.
func (r *Resolver) HandleHotkey(b hotkeys.Binding) {
	if r.listening() {
		return
	}
	action, ok := r.table.OwnerOfKey(b.Key(), b.Modifiers())
	if !ok {
		slog.Debug("[DEBUG-RESOLVER] hotkey has no owner", "hotkey", b.Normalized())
		return
	}
	r.emit(Trigger{Action: action, Source: "keyboard", Input: b.Normalized()})
}

func (r *Resolver) emit(t Trigger) {
	slog.Debug("[DEBUG-RESOLVER] action triggered", "action", t.Action, "source", t.Source, "input", t.Input)
	if r.fire != nil {
		r.fire(t)
	}
}
