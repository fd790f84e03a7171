package main

import (
	"errors"
	"log/slog"
	"reflect"
	"time"

	"gtrainer/internal/config"
)

type configUpdatedEvent struct {
	Config             config.Config `json:"config"`
	Version            uint64        `json:"version"`
	UpdatedAtUnixMilli int64         `json:"updated_at_unix_milli"`
	// External is true when the change came from an edit on disk.
	External bool `json:"external"`
}

// configWatchDebounce lets editors finish multi-step saves before reload.
const configWatchDebounce = 250 * time.Millisecond

// GetConfig returns loaded config.
func (a *App) GetConfig() config.Config {
	return a.getConfigSnapshot()
}

// GetConfigAndFlushWarnings returns loaded config and emits any pending startup warnings.
func (a *App) GetConfigAndFlushWarnings() config.Config {
	a.flushPendingConfigLoadWarnings()
	return a.getConfigSnapshot()
}

func (a *App) flushPendingConfigLoadWarnings() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	if warning := a.consumePendingConfigLoadWarning(); warning != "" {
		a.emitRuntimeEventWithContext(ctx, eventConfigLoadFailed, map[string]string{
			"message": warning,
		})
	}
}

// SaveConfig validates and persists cfg, then applies its bindings.
// The config:updated event carries the normalized config (with defaults filled).
// Poll interval, exclude names and monitor port take effect on next start.
func (a *App) SaveConfig(cfg config.Config) error {
	event, err := a.saveConfigWithLock(cfg)
	if err != nil {
		return err
	}
	if err := a.onUI(func() { a.applyBindingsFromConfig(event.Config) }); err != nil {
		slog.Warn("[WARN-CONFIG] saved config not applied to bindings", "error", err)
	}
	// Concurrent saves are ordered by Version; the frontend treats the
	// highest version as authoritative.
	a.emitRuntimeEvent(eventConfigUpdated, event)
	return nil
}

// saveConfigWithLock persists cfg, updates the in-memory snapshot, and bumps event version under cfgSaveMu.
func (a *App) saveConfigWithLock(cfg config.Config) (configUpdatedEvent, error) {
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	if a.configPath == "" {
		return configUpdatedEvent{}, errors.New("config path is not resolved")
	}
	normalized, err := config.Save(a.configPath, cfg)
	if err != nil {
		return configUpdatedEvent{}, err
	}
	a.setConfigSnapshot(normalized)
	return a.nextConfigEvent(normalized, false), nil
}

func (a *App) nextConfigEvent(cfg config.Config, external bool) configUpdatedEvent {
	return configUpdatedEvent{
		Config:             config.Clone(cfg),
		Version:            a.configEventVersion.Add(1),
		UpdatedAtUnixMilli: time.Now().UnixMilli(),
		External:           external,
	}
}

// applyBindingsFromConfig reloads the table from cfg. An armed capture is
// cancelled first so it cannot commit into a replaced table. Runs on the UI loop.
func (a *App) applyBindingsFromConfig(cfg config.Config) {
	if a.capture != nil && a.capture.Cancel() {
		slog.Info("[INFO-CAPTURE] capture cancelled by config change")
	}
	a.loadBindings(cfg.Bindings)
	a.registerHotkeys()
	a.emitRuntimeEvent(eventBindingsUpdated, a.ListBindings())
	a.flushPendingConfigLoadWarnings()
}

// startConfigWatcher reloads the config when it is edited outside the app.
func (a *App) startConfigWatcher() {
	w, err := config.Watch(a.configPath, configWatchDebounce, func(cfg config.Config, loadErr error) {
		a.postUI(func() { a.handleConfigFileChange(cfg, loadErr) })
	})
	if err != nil {
		slog.Warn("[WARN-CONFIG] config watcher unavailable", "path", a.configPath, "error", err)
		return
	}
	a.watcher = w
}

// handleConfigFileChange applies an on-disk edit. Writes made by this
// process reload to the snapshot already held and are ignored.
func (a *App) handleConfigFileChange(cfg config.Config, loadErr error) {
	if a.shuttingDown.Load() {
		return
	}
	if loadErr != nil {
		slog.Warn("[WARN-CONFIG] edited config file is invalid, keeping current settings", "path", a.configPath, "error", loadErr)
		a.emitRuntimeEvent(eventConfigLoadFailed, map[string]string{
			"message": "Config file edit ignored: " + loadErr.Error(),
		})
		return
	}

	a.cfgSaveMu.Lock()
	current := a.getConfigSnapshot()
	if reflect.DeepEqual(current, cfg) {
		a.cfgSaveMu.Unlock()
		slog.Debug("[DEBUG-CONFIG] config file change matches current settings")
		return
	}
	a.setConfigSnapshot(cfg)
	event := a.nextConfigEvent(cfg, true)
	a.cfgSaveMu.Unlock()

	slog.Info("[INFO-CONFIG] config reloaded from disk", "path", a.configPath, "bindings", len(cfg.Bindings))
	a.applyBindingsFromConfig(cfg)
	a.emitRuntimeEvent(eventConfigUpdated, event)
}
