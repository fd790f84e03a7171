// Package sessionlog keeps the warnings and errors of the current run so the
// UI can show them without the user digging through log files.
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"
)

// EntryCallback receives each record at or above the tee threshold.
// group is the dot-separated slog group, used as the entry source.
type EntryCallback func(ts time.Time, level slog.Level, msg string, group string)

// TeeHandler forwards every record to base and tees records at or above
// minLevel to a callback.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string
}

// NewTeeHandler wraps base. A nil callback disables teeing.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{base: base, callback: callback, minLevel: minLevel}
}

// Enabled defers to the base handler; minLevel only gates the callback.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record, then tees it. The callback runs even when the
// base handler fails and the base error is returned unchanged.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)
	if h.callback != nil && record.Level >= h.minLevel {
		h.tee(record)
	}
	return err
}

func (h *TeeHandler) tee(record slog.Record) {
	defer func() {
		if r := recover(); r != nil {
			// stderr, not slog: logging here would re-enter this handler.
			fmt.Fprintf(os.Stderr, "[session-log] callback panicked: %v\n%s\n", r, debug.Stack())
		}
	}()
	h.callback(record.Time, record.Level, record.Message, h.group)
}

// WithAttrs keeps the callback and group.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.base = h.base.WithAttrs(attrs)
	return &clone
}

// WithGroup appends name to the accumulated group.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.base = h.base.WithGroup(name)
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}
