package safego

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery.
// If the goroutine panics, the panic value is logged and the goroutine exits
// cleanly instead of crashing the process.
//
// Usage:
//
//	safego.Go(logger, "summary-update", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer recoverAndLog(logger, name)
		fn()
	}()
}

// Loop launches a goroutine that calls fn every interval until ctx is done.
// Each iteration is individually recovered, so a panic in one tick does not
// stop the loop. Used for background maintenance loops (delayed-job
// promotion, stalled-job reaping, retention cleanup).
func Loop(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, fn func(context.Context)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runRecovered(ctx, logger, name, fn)
			}
		}
	}()
}

func runRecovered(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context)) {
	defer recoverAndLog(logger, name)
	fn(ctx)
}

func recoverAndLog(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("Goroutine panicked",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}
