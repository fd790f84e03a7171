package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"gtrainer/internal/capture"
	"gtrainer/internal/config"
	"gtrainer/internal/devices"
	"gtrainer/internal/input"
	"gtrainer/internal/ipc"
	"gtrainer/internal/resolver"
)

// NOTE: This file overrides package-level function variables
// (runtimeEventsEmitFn, runtimeWindow*Fn). Do not use t.Parallel() here.

type fakePads struct {
	mu     sync.Mutex
	states map[int]input.GamepadState
}

func newFakePads() *fakePads {
	return &fakePads{states: map[int]input.GamepadState{}}
}

func (f *fakePads) ReadGamepad(slot int) (input.GamepadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[slot]
	if !ok {
		return input.GamepadState{}, devices.ErrNotConnected
	}
	return st, nil
}

func (f *fakePads) set(slot int, st input.GamepadState) {
	f.mu.Lock()
	f.states[slot] = st
	f.mu.Unlock()
}

type emittedEvent struct {
	name    string
	payload any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []emittedEvent
}

func recordRuntimeEvents(t *testing.T) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	orig := runtimeEventsEmitFn
	t.Cleanup(func() { runtimeEventsEmitFn = orig })
	runtimeEventsEmitFn = func(_ context.Context, name string, data ...interface{}) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		rec.mu.Lock()
		rec.events = append(rec.events, emittedEvent{name: name, payload: payload})
		rec.mu.Unlock()
	}
	return rec
}

func (r *eventRecorder) named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev.payload)
		}
	}
	return out
}

func (r *eventRecorder) wait(t *testing.T, name string, count int) []any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.named(name); len(got) >= count {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events, got %d", count, name, len(r.named(name)))
	return nil
}

type windowCalls struct {
	mu    sync.Mutex
	calls []string
}

func (w *windowCalls) add(name string) {
	w.mu.Lock()
	w.calls = append(w.calls, name)
	w.mu.Unlock()
}

func (w *windowCalls) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func stubWindowRuntime(t *testing.T, minimised bool) *windowCalls {
	t.Helper()
	calls := &windowCalls{}
	origMin, origHide, origShow := runtimeWindowIsMinimisedFn, runtimeWindowHideFn, runtimeWindowShowFn
	origUnmin, origTop := runtimeWindowUnminimiseFn, runtimeWindowSetAlwaysOnTopFn
	t.Cleanup(func() {
		runtimeWindowIsMinimisedFn, runtimeWindowHideFn, runtimeWindowShowFn = origMin, origHide, origShow
		runtimeWindowUnminimiseFn, runtimeWindowSetAlwaysOnTopFn = origUnmin, origTop
	})
	runtimeWindowIsMinimisedFn = func(context.Context) bool { return minimised }
	runtimeWindowHideFn = func(context.Context) { calls.add("hide") }
	runtimeWindowShowFn = func(context.Context) { calls.add("show") }
	runtimeWindowUnminimiseFn = func(context.Context) { calls.add("unminimise") }
	runtimeWindowSetAlwaysOnTopFn = func(_ context.Context, b bool) {
		if b {
			calls.add("top")
		}
	}
	return calls
}

// newWiredApp builds an App with the input pipeline wired to fake pads and
// a running UI loop, without touching the config file or OS services.
func newWiredApp(t *testing.T, pads devices.GamepadReader) *App {
	t.Helper()
	app := NewApp()
	app.setRuntimeContext(context.Background())

	cfg := config.DefaultConfig()
	cfg.Bindings = append(cfg.Bindings, config.BindingRecord{Action: "nitro", Kind: config.KindUnbound})
	app.setConfigSnapshot(cfg)
	app.loadBindings(cfg.Bindings)

	app.ui.Start(t.Context())
	app.wireInput(cfg, pads, nil)
	app.poller.Init()
	t.Cleanup(func() {
		app.ui.Stop()
		if err := app.hotkeys.Stop(); err != nil {
			t.Logf("hotkeys.Stop() error: %v", err)
		}
	})
	return app
}

func bindingFor(t *testing.T, app *App, action string) BindingView {
	t.Helper()
	for _, view := range app.ListBindings() {
		if view.Action == action {
			return view
		}
	}
	t.Fatalf("binding %q not listed", action)
	return BindingView{}
}

func TestGamepadCaptureCommitsAndResolves(t *testing.T) {
	events := recordRuntimeEvents(t)
	pads := newFakePads()
	app := newWiredApp(t, pads)

	pads.set(0, input.GamepadState{})
	app.poller.Poll()

	armed, err := app.BeginCapture("nitro", "gamepad")
	if err != nil || !armed {
		t.Fatalf("BeginCapture() = %v, %v; want armed", armed, err)
	}
	if started := events.named(eventCaptureStarted); len(started) != 1 {
		t.Fatalf("capture:started events = %d, want 1", len(started))
	}

	pads.set(0, input.GamepadState{Buttons: input.XInputA})
	app.poller.Poll()

	ended := events.wait(t, eventCaptureEnded, 1)
	result, ok := ended[0].(capture.Result)
	if !ok {
		t.Fatalf("capture:ended payload type = %T", ended[0])
	}
	if result.Outcome != capture.OutcomeCommitted || result.Display != "Gamepad: A" {
		t.Fatalf("result = %+v, want committed Gamepad: A", result)
	}
	if len(events.named(eventHotkeyTriggered)) != 0 {
		t.Fatal("the captured press must not trigger the action")
	}
	events.wait(t, eventBindingsUpdated, 1)

	if view := bindingFor(t, app, "nitro"); view.Kind != config.KindGamepad || view.Input != "A" {
		t.Fatalf("nitro binding = %+v", view)
	}
	persisted := app.GetConfig().Bindings
	if !slices.Contains(persisted, config.BindingRecord{Action: "nitro", Kind: config.KindGamepad, Button: "A"}) {
		t.Fatalf("config bindings = %+v, want nitro on A", persisted)
	}

	// Capture is over; the next press fires the action.
	pads.set(0, input.GamepadState{})
	app.poller.Poll()
	pads.set(0, input.GamepadState{Buttons: input.XInputA})
	app.poller.Poll()

	triggers := events.wait(t, eventHotkeyTriggered, 1)
	trigger, ok := triggers[0].(resolver.Trigger)
	if !ok || trigger.Action != "nitro" || trigger.Source != "gamepad[0]" {
		t.Fatalf("trigger = %#v", triggers[0])
	}
}

func TestBeginCaptureErrors(t *testing.T) {
	recordRuntimeEvents(t)
	app := newWiredApp(t, newFakePads())

	tests := []struct {
		name    string
		action  string
		mode    string
		wantErr error
	}{
		{name: "no gamepad", action: "nitro", mode: "gamepad", wantErr: capture.ErrNoDevice},
		{name: "no wheel", action: "nitro", mode: "wheel", wantErr: capture.ErrNoDevice},
		{name: "unknown action", action: "missing", mode: "gamepad", wantErr: capture.ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			armed, err := app.BeginCapture(tt.action, tt.mode)
			if armed || !errors.Is(err, tt.wantErr) {
				t.Fatalf("BeginCapture() = %v, %v; want %v", armed, err, tt.wantErr)
			}
		})
	}

	if _, err := app.BeginCapture("nitro", "joystick"); err == nil {
		t.Fatal("BeginCapture(bad mode) expected error")
	}
	if _, err := app.BeginCapture("  ", "gamepad"); err == nil {
		t.Fatal("BeginCapture(blank action) expected error")
	}
}

func TestBeginCaptureTwiceCancels(t *testing.T) {
	events := recordRuntimeEvents(t)
	pads := newFakePads()
	app := newWiredApp(t, pads)
	pads.set(1, input.GamepadState{})
	app.poller.Poll()

	if armed, err := app.BeginCapture("nitro", "gamepad"); err != nil || !armed {
		t.Fatalf("first BeginCapture() = %v, %v", armed, err)
	}
	if active, err := app.GetActiveCapture(); err != nil || active == nil || active.Action != "nitro" {
		t.Fatalf("GetActiveCapture() = %+v, %v", active, err)
	}
	if armed, err := app.BeginCapture("nitro", "gamepad"); err != nil || armed {
		t.Fatalf("second BeginCapture() = %v, %v; want cancel", armed, err)
	}

	ended := events.wait(t, eventCaptureEnded, 1)
	if result := ended[0].(capture.Result); result.Outcome != capture.OutcomeCancelled || result.Display != "Unbound" {
		t.Fatalf("result = %+v", result)
	}
	if app.bus.IsListening() {
		t.Fatal("bus still listening after cancel")
	}
	if active, err := app.GetActiveCapture(); err != nil || active != nil {
		t.Fatalf("GetActiveCapture() after cancel = %+v, %v", active, err)
	}
	if cancelled, err := app.CancelCapture(); err != nil || cancelled {
		t.Fatalf("CancelCapture() when idle = %v, %v", cancelled, err)
	}
}

func TestClearBinding(t *testing.T) {
	events := recordRuntimeEvents(t)
	app := newWiredApp(t, newFakePads())

	if err := app.ClearBinding(config.ActionToggleWindow); err != nil {
		t.Fatalf("ClearBinding() error = %v", err)
	}
	if view := bindingFor(t, app, config.ActionToggleWindow); view.Kind != config.KindUnbound || view.Display != "Unbound" {
		t.Fatalf("toggle-window after clear = %+v", view)
	}
	if len(events.named(eventBindingsUpdated)) != 1 {
		t.Fatal("ClearBinding should emit bindings:updated")
	}
	if err := app.ClearBinding("missing"); err == nil {
		t.Fatal("ClearBinding(missing) expected error")
	}
}

func TestUnwiredAppAccessors(t *testing.T) {
	app := NewApp()
	if got := app.GetConnectedGamepads(); got != nil {
		t.Fatalf("GetConnectedGamepads() = %v", got)
	}
	if got := app.GetConnectedWheelNames(); got != nil {
		t.Fatalf("GetConnectedWheelNames() = %v", got)
	}
	if got := app.RefreshDevices(); got != 0 {
		t.Fatalf("RefreshDevices() = %d", got)
	}
	if got := app.GetWebSocketURL(); got != "" {
		t.Fatalf("GetWebSocketURL() = %q", got)
	}
	if _, err := app.BeginCapture("nitro", "gamepad"); err == nil {
		t.Fatal("BeginCapture on unwired app expected error")
	}
	if view := bindingFor(t, app, config.ActionToggleWindow); view.Kind != config.KindUnbound {
		t.Fatalf("built-in action = %+v", view)
	}
}

func TestToggleWindow(t *testing.T) {
	calls := stubWindowRuntime(t, false)
	app := NewApp()
	app.setRuntimeContext(context.Background())
	app.setWindowVisible(true)

	app.toggleWindow()
	app.toggleWindow()

	want := []string{"hide", "show", "unminimise", "top"}
	if got := calls.list(); !slices.Equal(got, want) {
		t.Fatalf("window calls = %v, want %v", got, want)
	}
}

func TestToggleWindowRaisesMinimised(t *testing.T) {
	calls := stubWindowRuntime(t, true)
	app := NewApp()
	app.setRuntimeContext(context.Background())
	app.setWindowVisible(true)

	app.toggleWindow()
	if got := calls.list(); len(got) == 0 || got[0] != "show" {
		t.Fatalf("window calls = %v, want raise", got)
	}
}

func TestToggleWindowTriggerRunsOnUILoop(t *testing.T) {
	recordRuntimeEvents(t)
	calls := stubWindowRuntime(t, false)
	app := newWiredApp(t, newFakePads())
	app.setWindowVisible(true)

	app.fireTrigger(resolver.Trigger{Action: config.ActionToggleWindow, Source: "keyboard"})
	if err := app.onUI(func() {}); err != nil {
		t.Fatalf("onUI() error = %v", err)
	}
	if got := calls.list(); !slices.Equal(got, []string{"hide"}) {
		t.Fatalf("window calls = %v, want [hide]", got)
	}
}

func TestHandleIPCRequest(t *testing.T) {
	events := recordRuntimeEvents(t)
	stubWindowRuntime(t, false)
	app := newWiredApp(t, newFakePads())

	tests := []struct {
		name   string
		req    ipc.Request
		wantOK bool
	}{
		{name: "activate", req: ipc.Request{Command: ipc.CommandActivate}, wantOK: true},
		{name: "status", req: ipc.Request{Command: ipc.CommandStatus}, wantOK: true},
		{name: "trigger", req: ipc.Request{Command: ipc.CommandTrigger, Args: []string{"nitro"}}, wantOK: true},
		{name: "trigger unknown action", req: ipc.Request{Command: ipc.CommandTrigger, Args: []string{"fly"}}},
		{name: "trigger without action", req: ipc.Request{Command: ipc.CommandTrigger}},
		{name: "unknown command", req: ipc.Request{Command: "new-session"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := app.handleIPCRequest(tt.req)
			if resp.OK != tt.wantOK {
				t.Fatalf("response = %+v, want OK=%v", resp, tt.wantOK)
			}
			if !resp.OK && resp.Error == "" {
				t.Fatal("failed response must carry an error message")
			}
		})
	}

	triggers := events.named(eventHotkeyTriggered)
	if len(triggers) != 1 || triggers[0].(resolver.Trigger).Source != "ipc" {
		t.Fatalf("triggers = %#v", triggers)
	}

	status := app.handleIPCRequest(ipc.Request{Command: ipc.CommandStatus})
	if status.Result["listening"] != false || status.Result["bindings"] != 2 {
		t.Fatalf("status result = %+v", status.Result)
	}

	app.shuttingDown.Store(true)
	if resp := app.handleIPCRequest(ipc.Request{Command: ipc.CommandStatus}); resp.OK {
		t.Fatal("requests during shutdown must fail")
	}
}

func TestHandleConfigFileChange(t *testing.T) {
	events := recordRuntimeEvents(t)
	app := newWiredApp(t, newFakePads())

	same := app.GetConfig()
	if err := app.onUI(func() { app.handleConfigFileChange(same, nil) }); err != nil {
		t.Fatalf("onUI() error = %v", err)
	}
	if got := events.named(eventConfigUpdated); len(got) != 0 {
		t.Fatalf("unchanged config emitted %d config:updated events", len(got))
	}

	edited := app.GetConfig()
	edited.Bindings = []config.BindingRecord{
		{Action: "nitro", Kind: config.KindGamepad, Button: "Y"},
	}
	if err := app.onUI(func() { app.handleConfigFileChange(edited, nil) }); err != nil {
		t.Fatalf("onUI() error = %v", err)
	}
	updated := events.named(eventConfigUpdated)
	if len(updated) != 1 || !updated[0].(configUpdatedEvent).External {
		t.Fatalf("config:updated events = %#v", updated)
	}
	if owner, ok := app.table.OwnerOfButton(input.ButtonY); !ok || owner != "nitro" {
		t.Fatalf("OwnerOfButton(Y) = %q, %v", owner, ok)
	}
	// The built-in action survives a file that omits it.
	if _, ok := app.table.Get(config.ActionToggleWindow); !ok {
		t.Fatal("toggle-window dropped by reload")
	}

	if err := app.onUI(func() { app.handleConfigFileChange(config.Config{}, errors.New("yaml: bad indent")) }); err != nil {
		t.Fatalf("onUI() error = %v", err)
	}
	if len(events.named(eventConfigLoadFailed)) != 1 {
		t.Fatal("invalid edit should emit config:load-failed")
	}
}

func newConfigPathForAPITest(t *testing.T, fileName string) string {
	t.Helper()
	localAppData := t.TempDir()
	t.Setenv("LOCALAPPDATA", localAppData)
	t.Setenv("APPDATA", "")

	defaultPath := config.DefaultPath()
	return filepath.Join(filepath.Dir(defaultPath), fileName)
}

func TestSaveConfigAppliesBindings(t *testing.T) {
	events := recordRuntimeEvents(t)
	app := newWiredApp(t, newFakePads())
	app.configPath = newConfigPathForAPITest(t, "config.yaml")

	cfg := app.GetConfig()
	cfg.Bindings = []config.BindingRecord{
		{Action: config.ActionToggleWindow, Kind: config.KindUnbound},
		{Action: "nitro", Kind: config.KindWheel, Button: "WheelButton3"},
	}
	if err := app.SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	updated := events.named(eventConfigUpdated)
	if len(updated) != 1 {
		t.Fatalf("config:updated events = %d, want 1", len(updated))
	}
	if ev := updated[0].(configUpdatedEvent); ev.Version != 1 || ev.External {
		t.Fatalf("event = %+v", ev)
	}
	if view := bindingFor(t, app, "nitro"); view.Display != "Wheel: WheelButton3" {
		t.Fatalf("nitro = %+v", view)
	}

	loaded, err := config.Load(app.configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(loaded.Bindings, cfg.Bindings) {
		t.Fatalf("persisted bindings = %+v, want %+v", loaded.Bindings, cfg.Bindings)
	}
}

func TestSaveConfigWithoutPath(t *testing.T) {
	app := NewApp()
	if err := app.SaveConfig(config.DefaultConfig()); err == nil {
		t.Fatal("SaveConfig without a config path expected error")
	}
}

func TestSessionLogCapturesWarnings(t *testing.T) {
	events := recordRuntimeEvents(t)
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	app := NewApp()
	app.setRuntimeContext(context.Background())
	app.initSessionLog()
	t.Cleanup(app.closeSessionLog)

	slog.Info("[INFO-TEST] not recorded")
	slog.Warn("[WARN-TEST] wheel read failed")

	entries := app.GetSessionLog()
	if len(entries) != 1 || entries[0].Message != "[WARN-TEST] wheel read failed" || entries[0].Level != "warn" {
		t.Fatalf("entries = %+v", entries)
	}
	if app.GetSessionLogFilePath() != "" {
		t.Fatal("no file is opened without a config path")
	}
	events.wait(t, eventSessionLogUpdated, 1)
}

func TestFlushPendingConfigLoadWarnings(t *testing.T) {
	events := recordRuntimeEvents(t)
	app := NewApp()
	app.addPendingConfigLoadWarning("  first  ")
	app.addPendingConfigLoadWarning("")
	app.addPendingConfigLoadWarning("second")

	// Without a runtime context warnings stay queued.
	app.flushPendingConfigLoadWarnings()
	app.setRuntimeContext(context.Background())
	app.flushPendingConfigLoadWarnings()
	app.flushPendingConfigLoadWarnings()

	got := events.named(eventConfigLoadFailed)
	if len(got) != 1 {
		t.Fatalf("config:load-failed events = %d, want 1", len(got))
	}
	if msg := got[0].(map[string]string)["message"]; msg != "first\nsecond" {
		t.Fatalf("message = %q", msg)
	}
}

func TestWaitWithTimeout(t *testing.T) {
	if !waitWithTimeout(func() {}, time.Second) {
		t.Fatal("waitWithTimeout(fast) = false")
	}
	block := make(chan struct{})
	defer close(block)
	if waitWithTimeout(func() { <-block }, 20*time.Millisecond) {
		t.Fatal("waitWithTimeout(blocked) = true")
	}
}
