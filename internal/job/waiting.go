package job

import (
	"context"
	"time"
)

// SleepWork returns a runnable that occupies its core for d of wall time,
// spread over as many slices as it takes, and then finishes. The task
// leaves the scheduler afterwards, so it shows up as Deleted in the next
// sampling window.
func SleepWork(d time.Duration) func(context.Context) error {
	left := d
	return func(ctx context.Context) error {
		if left <= 0 {
			return nil
		}
		start := time.Now()
		timer := time.NewTimer(left)
		defer timer.Stop()

		select {
		case <-timer.C:
			left = 0
			return nil
		case <-ctx.Done():
			left -= time.Since(start)
			return ctx.Err()
		}
	}
}
