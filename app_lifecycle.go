package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gtrainer/internal/capture"
	"gtrainer/internal/config"
	"gtrainer/internal/devices"
	"gtrainer/internal/input"
	"gtrainer/internal/ipc"
	"gtrainer/internal/resolver"
	"gtrainer/internal/wsserver"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                            = runtime.EventsEmit
	runtimeLogger                 appRuntimeLogger = wailsRuntimeLogger{}
	newPipeServerFn                                = ipc.NewPipeServer
	platformBackendsFn                             = devices.PlatformBackends
	runtimeWindowIsMinimisedFn                     = runtime.WindowIsMinimised
	runtimeWindowHideFn                            = runtime.WindowHide
	runtimeWindowShowFn                            = runtime.WindowShow
	runtimeWindowUnminimiseFn                      = runtime.WindowUnminimise
	runtimeWindowSetAlwaysOnTopFn                  = runtime.WindowSetAlwaysOnTop
)

const (
	shutdownWaitTimeout = 10 * time.Second
	// uiCallTimeout bounds how long a bound method waits for the UI loop.
	uiCallTimeout = 5 * time.Second
)

func (a *App) addPendingConfigLoadWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumePendingConfigLoadWarning() string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	if len(a.configLoadWarnings) == 0 {
		return ""
	}
	message := strings.Join(a.configLoadWarnings, "\n")
	a.configLoadWarnings = nil
	return message
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()

	a.setRuntimeContext(ctx)
	a.setWindowVisible(true)

	a.configPath = config.DefaultPath()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.addPendingConfigLoadWarning(message)
	}
	a.initSessionLog()

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// A broken config file never blocks startup.
		cfg = config.DefaultConfig()
		a.addPendingConfigLoadWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "failed to load config from %s: %v", a.configPath, err)
	}
	a.setConfigSnapshot(cfg)
	a.loadBindings(cfg.Bindings)

	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancel = cancel
	a.ui.Start(bgCtx)

	a.startMonitorServer(bgCtx, cfg)

	gamepads, wheels := platformBackendsFn()
	a.wireInput(cfg, gamepads, wheels)
	a.poller.Init()
	a.poller.Run(bgCtx, &a.bgWG, cfg.PollInterval())
	runtimeLogger.Infof(ctx, "input devices: gamepads=%v wheels=%v",
		a.poller.ConnectedGamepads(), a.poller.ConnectedWheelNames())

	a.registerHotkeys()

	a.pipeServer = newPipeServerFn(ipc.DefaultPipeName(), ipc.HandlerFunc(a.handleIPCRequest))
	if err := a.pipeServer.Start(); err != nil {
		runtimeLogger.Errorf(ctx, "pipe server failed: %v", err)
	} else {
		runtimeLogger.Infof(ctx, "pipe server listening: %s", a.pipeServer.PipeName())
	}

	a.startConfigWatcher()
	a.flushPendingConfigLoadWarnings()
}

// wireInput builds the device poller, resolver and capture controller and
// connects them through the bus. Backends may be nil.
func (a *App) wireInput(cfg config.Config, gamepads devices.GamepadReader, wheels devices.WheelEnumerator) {
	a.poller = devices.NewPoller(gamepads, wheels, a.bus, devices.PollerOptions{
		ExcludeNames: cfg.WheelExcludeNames,
	})
	a.resolver = resolver.New(a.table, a.bus.IsListening, a.fireTrigger)
	a.capture = capture.NewController(a.table, a.bus, a.keyHook, a.poller, capturePresenter{app: a}, capture.Options{
		Timeout: cfg.CaptureTimeout(),
		Post:    a.postUI,
	})

	a.unsubscribe = append(a.unsubscribe,
		a.bus.Subscribe(a.resolver.HandleButton),
		a.bus.Subscribe(a.broadcastButton),
		a.bus.SubscribeListening(func(ev input.ButtonEvent) {
			a.postUI(func() { a.capture.HandleButton(ev) })
		}),
	)
}

// startMonitorServer starts the local WebSocket monitor. Failure only
// disables the monitor.
func (a *App) startMonitorServer(ctx context.Context, cfg config.Config) {
	hub := wsserver.NewHub(wsserver.HubOptions{
		Addr: fmt.Sprintf("127.0.0.1:%d", cfg.WebSocketPort),
	})
	if err := hub.Start(ctx); err != nil {
		runtimeLogger.Warningf(ctx, "input monitor server failed: %v", err)
		return
	}
	a.wsHub = hub
}

// postUI queues fn on the UI loop. A full or stopped loop drops fn.
func (a *App) postUI(fn func()) {
	if err := a.ui.Post(fn); err != nil {
		slog.Debug("[DEBUG-UILOOP] message dropped", "error", err)
	}
}

// onUI runs fn on the UI loop and waits for it.
func (a *App) onUI(fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), uiCallTimeout)
	defer cancel()
	return a.ui.Do(ctx, fn)
}

func (a *App) shutdown(_ context.Context) {
	a.shuttingDown.Store(true)
	logCtx := a.runtimeContext()

	if a.capture != nil {
		if err := a.onUI(func() { a.capture.Cancel() }); err != nil {
			slog.Debug("[DEBUG-SHUTDOWN] capture cancel skipped", "error", err)
		}
	}
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.unsubscribe = nil

	if a.bgCancel != nil {
		a.bgCancel()
		a.bgCancel = nil
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}
	if a.poller != nil {
		a.poller.Close()
	}
	if a.hotkeys != nil {
		if err := a.hotkeys.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "hotkeys stop failed: %v", err)
		}
	}
	if a.keyHook != nil {
		if err := a.keyHook.Detach(); err != nil {
			runtimeLogger.Warningf(logCtx, "keyboard hook detach failed: %v", err)
		}
	}
	a.ui.Stop()

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "config watcher close failed: %v", err)
		}
	}
	if a.pipeServer != nil {
		if err := a.pipeServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "pipe server stop failed: %v", err)
		}
	}
	if a.wsHub != nil {
		if err := a.wsHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "input monitor stop failed: %v", err)
		}
	}
	a.closeSessionLog()
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks; this is
	// only used on shutdown paths where completion is expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// registerHotkeys re-registers every keyboard binding as a global hotkey.
func (a *App) registerHotkeys() {
	if a.hotkeys == nil || a.resolver == nil {
		slog.Debug("[DEBUG-HOTKEY] hotkeys not wired, skipping registration")
		return
	}
	logCtx := a.runtimeContext()
	if err := a.hotkeys.Start(a.table.Hotkeys(), a.resolver.HandleHotkey); err != nil {
		runtimeLogger.Warningf(logCtx, "global hotkey registration failed: %v", err)
	}
	slog.Info("[INFO-HOTKEY] global hotkeys registered", "bindings", a.hotkeys.ActiveBindings())
}

// bringWindowToFront shows and raises the application window.
// Used when a second instance signals the first to activate.
func (a *App) bringWindowToFront() {
	ctx := a.runtimeContext()
	if ctx == nil {
		slog.Warn("[WARN-IPC] bringWindowToFront dropped because runtime context is nil")
		return
	}
	a.raiseWindow(ctx)
	a.setWindowVisible(true)
}

func (a *App) raiseWindow(ctx context.Context) {
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowSetAlwaysOnTopFn(ctx, true)
	runtimeWindowSetAlwaysOnTopFn(ctx, false)
}

func (a *App) setWindowVisible(visible bool) {
	a.windowMu.Lock()
	a.windowVisible = visible
	a.windowMu.Unlock()
}

// toggleWindow hides a visible window and raises a hidden or minimised one.
func (a *App) toggleWindow() {
	// A second trigger during the OS window calls is dropped.
	if !a.windowToggling.CompareAndSwap(false, true) {
		slog.Debug("[DEBUG-HOTKEY] toggle already in progress, skipping")
		return
	}
	defer a.windowToggling.Store(false)

	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}

	// No Wails runtime calls while holding windowMu.
	isMinimised := runtimeWindowIsMinimisedFn(ctx)

	a.windowMu.Lock()
	currentlyVisible := a.windowVisible && !isMinimised
	a.windowMu.Unlock()

	if currentlyVisible {
		runtimeWindowHideFn(ctx)
	} else {
		a.raiseWindow(ctx)
	}

	a.setWindowVisible(!currentlyVisible)
}
