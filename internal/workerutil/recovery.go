// Package workerutil runs background goroutines that survive panics.
package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	// defaultInitialBackoff is the first restart delay after a panic.
	// It doubles per attempt up to defaultMaxBackoff.
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	// defaultMaxRetries bounds restarts to roughly 30s of backoff in total.
	defaultMaxRetries = 10
)

// RecoveryOptions configures RunWithPanicRecovery.
// Zero or negative numeric fields take the package defaults (100ms, 5s, 10).
// Set MaxRetries to 1 to run once and call OnFatal on the first panic.
// Nil callbacks are no-ops.
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// OnPanic runs after each recovered panic, before the backoff wait.
	// attempt is 1-based.
	OnPanic func(worker string, attempt int)

	// OnFatal runs once when MaxRetries is exhausted.
	OnFatal func(worker string, maxRetries int)

	// IsShutdown stops restarts while the application tears down.
	// OnPanic is not called in that case.
	IsShutdown func() bool
}

func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[WARN-WORKER] MaxBackoff < InitialBackoff, using InitialBackoff as MaxBackoff",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery runs fn on a goroutine tracked by wg. A panic in fn is
// logged with its stack and fn is restarted after an exponential backoff.
// A normal return or a cancelled ctx ends the worker.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	opts = opts.applyDefaults()
	wg.Go(func() {
		runRecoveryLoop(ctx, name, fn, opts)
	})
}

func runRecoveryLoop(
	ctx context.Context,
	name string,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	restartDelay := opts.InitialBackoff

	for attempt := range opts.MaxRetries {
		if !runOnce(ctx, name, fn) || ctx.Err() != nil {
			return
		}

		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[INFO-WORKER] shutdown in progress, not restarting", "worker", name)
			return
		}

		slog.Warn("[WARN-WORKER] restarting worker after panic",
			"worker", name,
			"restartDelay", restartDelay,
			"attempt", attempt+1,
		)
		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt+1)
		}

		// No restart follows the last attempt, so go straight to OnFatal.
		if attempt == opts.MaxRetries-1 {
			break
		}

		restartTimer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			restartTimer.Stop()
			return
		case <-restartTimer.C:
		}
		restartDelay = nextBackoff(restartDelay, opts.MaxBackoff)
	}

	slog.Error("[ERROR-WORKER] worker exceeded max retries, giving up",
		"worker", name,
		"maxRetries", opts.MaxRetries,
	)
	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// runOnce calls fn and reports whether it panicked.
func runOnce(ctx context.Context, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ERROR-WORKER] background goroutine recovered from panic",
				"worker", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			panicked = true
		}
	}()
	fn(ctx)
	return false
}

// nextBackoff doubles current, capped at maxBackoff and guarded against overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
