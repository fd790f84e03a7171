package resolver

import (
	"reflect"
	"testing"

	"gtrainer/internal/bindings"
	"gtrainer/internal/hotkeys"
	"gtrainer/internal/input"
)

func newTable(t *testing.T) *bindings.Table {
	t.Helper()
	table := bindings.NewTable()
	for _, a := range []string{"god-mode", "nitro", "toggle-window"} {
		table.Ensure(a)
	}
	if err := table.CommitButton("god-mode", bindings.KindGamepad, input.ButtonY); err != nil {
		t.Fatal(err)
	}
	if err := table.CommitButton("nitro", bindings.KindSteeringWheel, input.WheelButton2); err != nil {
		t.Fatal(err)
	}
	if err := table.CommitKeyboard("toggle-window", 0x7B, hotkeys.ModControl|hotkeys.ModShift); err != nil {
		t.Fatal(err)
	}
	return table
}

func TestResolverFiresBoundActions(t *testing.T) {
	var got []Trigger
	r := New(newTable(t), nil, func(tr Trigger) { got = append(got, tr) })

	r.HandleButton(input.ButtonEvent{Source: input.GamepadSource(3), Button: input.ButtonY})
	r.HandleButton(input.ButtonEvent{Source: input.WheelSource("joy1"), Button: input.WheelButton2})
	r.HandleButton(input.ButtonEvent{Source: input.GamepadSource(0), Button: input.ButtonA})

	hk, err := hotkeys.ParseBinding("Ctrl+Shift+F12")
	if err != nil {
		t.Fatal(err)
	}
	r.HandleHotkey(hk)
	other, _ := hotkeys.ParseBinding("Alt+F12")
	r.HandleHotkey(other)

	want := []Trigger{
		{Action: "god-mode", Source: "gamepad[3]", Input: "Y"},
		{Action: "nitro", Source: "wheel[joy1]", Input: "WheelButton2"},
		{Action: "toggle-window", Source: "keyboard", Input: "Ctrl+Shift+F12"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("triggers = %+v, want %+v", got, want)
	}
}

func TestResolverSuppressedWhileListening(t *testing.T) {
	listening := true
	fired := 0
	r := New(newTable(t), func() bool { return listening }, func(Trigger) { fired++ })

	r.HandleButton(input.ButtonEvent{Source: input.GamepadSource(0), Button: input.ButtonY})
	hk, _ := hotkeys.ParseBinding("Ctrl+Shift+F12")
	r.HandleHotkey(hk)
	if fired != 0 {
		t.Fatalf("fired %d times while listening", fired)
	}

	listening = false
	r.HandleButton(input.ButtonEvent{Source: input.GamepadSource(0), Button: input.ButtonY})
	if fired != 1 {
		t.Fatalf("fired %d times after listening stopped, want 1", fired)
	}
}

func TestResolverNilFire(t *testing.T) {
	r := New(newTable(t), nil, nil)
	r.HandleButton(input.ButtonEvent{Source: input.GamepadSource(0), Button: input.ButtonY})
}
