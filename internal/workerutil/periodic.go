package workerutil

import (
	"context"
	"sync"
	"time"
)

// RunPeriodic calls tick every interval on a recovered worker goroutine until
// ctx is cancelled. A panic inside tick restarts the ticker loop with the
// backoff policy of opts; ticks missed while a tick runs are dropped rather
// than queued.
func RunPeriodic(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	interval time.Duration,
	tick func(),
	opts RecoveryOptions,
) {
	if interval <= 0 {
		interval = time.Second
	}
	RunWithPanicRecovery(ctx, name, wg, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}, opts)
}
