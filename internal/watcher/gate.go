package watcher

import (
	"context"
	"time"
)

// stopped reports whether ctx has been cancelled. It is consulted before
// every probe/load cycle.
func stopped(ctx context.Context) bool {
	return ctx.Err() != nil
}

// next blocks until the next tick or until ctx is cancelled, whichever comes
// first, and reports whether the loop should run another cycle. When both are
// ready at once cancellation wins.
func next(ctx context.Context, ticks <-chan time.Time) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticks:
		return !stopped(ctx)
	}
}
