package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"gtrainer/internal/sessionlog"
)

const sessionLogDir = "session-logs"

// initSessionLog installs the tee handler so Warn and Error records of this
// run are kept for GetSessionLog, and mirrors them to a JSONL file next to
// the config. File failures only disable the mirror.
func (a *App) initSessionLog() {
	store := sessionlog.NewStore(sessionlog.DefaultMaxEntries, func() {
		// emitRuntimeEvent warns on a nil context, which would feed back
		// into the store.
		if ctx := a.runtimeContext(); ctx != nil {
			runtimeEventsEmitFn(ctx, eventSessionLogUpdated, nil)
		}
	})
	a.sessionLog = store

	// Wrapping slog's built-in default handler deadlocks once SetDefault
	// redirects the log package, so the base writes to stderr directly.
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, store.Callback())))

	if a.configPath == "" {
		return
	}
	dir := filepath.Join(filepath.Dir(a.configPath), sessionLogDir)
	if err := store.OpenFile(dir, sessionlog.DefaultMaxFiles); err != nil {
		slog.Warn("[WARN-SESSIONLOG] session log file unavailable", "dir", dir, "error", err)
		return
	}
	slog.Info("[INFO-SESSIONLOG] initialized", "path", store.Path())
}

func (a *App) closeSessionLog() {
	if a.sessionLog == nil {
		return
	}
	// slog may route back into the store; report on stderr instead.
	if err := a.sessionLog.Close(); err != nil {
		_, _ = os.Stderr.WriteString("[session-log] close failed: " + err.Error() + "\n")
	}
}

// GetSessionLog returns the warnings and errors recorded during this run,
// oldest first.
func (a *App) GetSessionLog() []sessionlog.Entry {
	if a.sessionLog == nil {
		return []sessionlog.Entry{}
	}
	return a.sessionLog.Entries()
}

// GetSessionLogFilePath returns the JSONL mirror of the session log, or ""
// when none is open.
func (a *App) GetSessionLogFilePath() string {
	if a.sessionLog == nil {
		return ""
	}
	return a.sessionLog.Path()
}
