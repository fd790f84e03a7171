// Package uiloop is the single goroutine that owns UI-facing state.
// Producers on other goroutines hand it work with Post or Do; messages run
// one at a time in the order they were accepted.
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"gtrainer/internal/workerutil"
)

// DefaultQueueSize bounds pending messages.
const DefaultQueueSize = 256

var (
	// ErrStopped is returned when the loop is not running.
	ErrStopped = errors.New("ui loop stopped")
	// ErrQueueFull is returned when a message cannot be queued without blocking.
	ErrQueueFull = errors.New("ui loop queue full")
)

// Loop drains a bounded queue of funcs on one goroutine.
type Loop struct {
	queue chan func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped chan struct{}
	running atomic.Bool
}

// New returns a stopped loop. size <= 0 uses DefaultQueueSize.
func New(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{queue: make(chan func(), size)}
}

// Start launches the loop goroutine. It is a no-op when already running.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.stopped = make(chan struct{})
	l.running.Store(true)

	stopped := l.stopped
	workerutil.RunWithPanicRecovery(loopCtx, "ui-loop", &l.wg, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-l.queue:
				if err := run(fn); err != nil {
					slog.Error("[ERROR-UILOOP] message panicked", "error", err)
				}
			}
		}
	}, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return loopCtx.Err() != nil },
	})
	go func() {
		<-loopCtx.Done()
		close(stopped)
	}()
}

// Stop cancels the loop and waits for the running message to finish.
// Messages still queued are discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return
	}
	l.running.Store(false)
	cancel := l.cancel
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
	for {
		select {
		case <-l.queue:
		default:
			return
		}
	}
}

// Running reports whether the loop accepts messages.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Post queues fn without blocking. It returns an error when the loop is
// stopped or its queue is full; the message is dropped in both cases.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	if !l.running.Load() {
		return ErrStopped
	}
	select {
	case l.queue <- fn:
		return nil
	default:
		slog.Warn("[WARN-UILOOP] queue full, dropping message", "capacity", cap(l.queue))
		return ErrQueueFull
	}
}

// Do runs fn on the loop and waits for it to return. It must not be called
// from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()

	result := make(chan error, 1)
	if err := l.Post(func() { result <- run(fn) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-stopped:
		// The message may have run just before the stop was observed.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

func run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
	return nil
}
