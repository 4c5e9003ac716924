package queue

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Runner executes detached tasks on tracked goroutines. Detachment is
// deliberate: callers must return their own response without waiting, but the
// process guarantees it will not exit before dispatched work is flushed.
// Wait blocks shutdown until every task has finished.
type Runner struct {
	wg sync.WaitGroup
}

// Go schedules fn on a tracked goroutine. Panics are recovered and logged so
// a single bad job cannot take the server down.
func (r *Runner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in detached task",
					"error", rec,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}

// Wait blocks until all detached tasks finish or ctx expires.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
