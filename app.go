package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"gtrainer/internal/bindings"
	"gtrainer/internal/capture"
	"gtrainer/internal/config"
	"gtrainer/internal/devices"
	"gtrainer/internal/hotkeys"
	"gtrainer/internal/inputbus"
	"gtrainer/internal/ipc"
	"gtrainer/internal/keyboard"
	"gtrainer/internal/resolver"
	"gtrainer/internal/sessionlog"
	"gtrainer/internal/uiloop"
	"gtrainer/internal/wsserver"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	//
	// Independent locks: windowMu, startupWarnMu, ctxMu.
	cfgMu              sync.RWMutex
	cfgSaveMu          sync.Mutex
	configEventVersion atomic.Uint64
	cfg                config.Config
	configPath         string
	startupWarnMu      sync.Mutex
	configLoadWarnings []string
	watcher            *config.Watcher

	// Input pipeline. table and bus are created in NewApp and never
	// reassigned; the rest is wired in startup.
	table    *bindings.Table
	bus      *inputbus.Bus
	poller   *devices.Poller
	keyHook  *keyboard.Hook
	resolver *resolver.Resolver
	hotkeys  *hotkeys.Manager

	// ui owns capture. The controller must only be touched from ui messages.
	ui      *uiloop.Loop
	capture *capture.Controller

	pipeServer *ipc.PipeServer
	// wsHub streams input activity to a local monitor. Written once in
	// startup before any broadcaster runs; nil if the server failed to start.
	wsHub *wsserver.Hub

	sessionLog *sessionlog.Store

	// Window visibility state.
	windowMu       sync.Mutex
	windowVisible  bool
	windowToggling atomic.Bool
	shuttingDown   atomic.Bool

	unsubscribe []func()

	// Background worker cancellation/waits.
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates the app service.
func NewApp() *App {
	table := bindings.NewTable()
	table.Ensure(config.ActionToggleWindow)
	return &App{
		table:   table,
		bus:     inputbus.New(),
		keyHook: keyboard.NewHook(),
		hotkeys: hotkeys.NewManager(),
		ui:      uiloop.New(uiloop.DefaultQueueSize),
	}
}

// GetWebSocketURL returns the input monitor endpoint. The frontend's monitor
// view connects to it to watch raw button edges and triggers live.
// Returns empty string if the monitor server is not available.
func (a *App) GetWebSocketURL() string {
	if a.wsHub == nil {
		slog.Debug("[DEBUG-WS] wsHub is nil, WebSocket URL unavailable")
		return ""
	}
	return a.wsHub.URL()
}
