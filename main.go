package main

import (
	"embed"
	"errors"
	"log/slog"

	"gtrainer/internal/ipc"
	"gtrainer/internal/singleinstance"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Two instances would fight over the keyboard hook and the global
	// hotkeys, so the second one only wakes the first.
	mutexLock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[INFO-SINGLE] another instance is already running, signaling activation")
		if _, sendErr := ipc.Send(ipc.DefaultPipeName(), ipc.Request{Command: ipc.CommandActivate}); sendErr != nil {
			slog.Warn("[WARN-SINGLE] failed to signal existing instance", "error", sendErr)
		}
		return
	}
	if err != nil {
		slog.Warn("[WARN-SINGLE] mutex creation failed, proceeding without single-instance guard", "error", err)
	}
	if mutexLock != nil {
		defer func() {
			if releaseErr := mutexLock.Release(); releaseErr != nil {
				slog.Warn("[WARN-SINGLE] mutex release failed", "error", releaseErr)
			}
		}()
	}

	app := NewApp()

	err = wails.Run(&options.App{
		Title:     "gtrainer",
		Width:     960,
		Height:    640,
		MinWidth:  720,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 14, G: 16, B: 20, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []any{
			app,
		},
	})

	if err != nil {
		slog.Error("[ERROR-APP] wails run failed", "error", err)
	}
}
