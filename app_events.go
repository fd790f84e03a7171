package main

import (
	"context"
	"log/slog"

	"gtrainer/internal/capture"
	"gtrainer/internal/config"
	"gtrainer/internal/input"
	"gtrainer/internal/resolver"
	"gtrainer/internal/wsserver"
)

// Runtime event names consumed by the frontend.
const (
	eventCaptureStarted    = "capture:started"
	eventCaptureEnded      = "capture:ended"
	eventHotkeyTriggered   = "hotkey:triggered"
	eventBindingsUpdated   = "bindings:updated"
	eventConfigUpdated     = "config:updated"
	eventConfigLoadFailed  = "config:load-failed"
	eventSessionLogUpdated = "app:session-log-updated"
)

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[WARN-EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// capturePresenter forwards capture transitions to the frontend and the
// monitor stream. It runs on the UI loop.
type capturePresenter struct {
	app *App
}

type captureMonitorEvent struct {
	Phase   string           `json:"phase"`
	Session *capture.Session `json:"session,omitempty"`
	Result  *capture.Result  `json:"result,omitempty"`
}

func (p capturePresenter) CaptureStarted(s capture.Session) {
	p.app.emitRuntimeEvent(eventCaptureStarted, s)
	p.app.broadcast(wsserver.TopicCapture, captureMonitorEvent{Phase: "started", Session: &s})
}

func (p capturePresenter) CaptureEnded(r capture.Result) {
	p.app.emitRuntimeEvent(eventCaptureEnded, r)
	p.app.broadcast(wsserver.TopicCapture, captureMonitorEvent{Phase: "ended", Result: &r})
	if r.Outcome == capture.OutcomeCommitted {
		p.app.bindingsChanged()
	}
}

// fireTrigger handles a resolved action. It is called from the poller and
// hotkey goroutines.
func (a *App) fireTrigger(t resolver.Trigger) {
	if a.shuttingDown.Load() {
		return
	}
	a.emitRuntimeEvent(eventHotkeyTriggered, t)
	a.broadcast(wsserver.TopicTriggers, t)
	if t.Action == config.ActionToggleWindow {
		a.postUI(a.toggleWindow)
	}
}

// broadcastButton mirrors every bus edge to the monitor stream.
func (a *App) broadcastButton(ev input.ButtonEvent) {
	a.broadcast(wsserver.TopicButtons, ev)
}

func (a *App) broadcast(topic wsserver.Topic, payload any) {
	if a.wsHub == nil {
		return
	}
	a.wsHub.Broadcast(topic, payload)
}
