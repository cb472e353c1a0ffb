package schedule

import (
	"context"
	"fmt"
	"time"
)

// RunAt executes fn in its own goroutine once runAt is reached.
// fn is not called if ctx ends first.
func RunAt(ctx context.Context, runAt time.Time, execute func(ctx context.Context)) {
	go func() {
		if !sleepUntil(ctx, runAt) {
			return
		}
		execute(ctx)
	}()
}

// Every blocks, calling fn at each occurrence of cron, until ctx ends.
// Runs never overlap: an occurrence that passes while fn is still running is skipped.
func Every(ctx context.Context, cron string, fn func(ctx context.Context)) error {
	expr, err := parse(cron)
	if err != nil {
		return err
	}

	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return fmt.Errorf("cron expression %q has no upcoming run", cron)
		}
		if !sleepUntil(ctx, next) {
			return ctx.Err()
		}
		fn(ctx)
	}
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	delay := time.Until(t)
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
