package job

import (
	"context"
	"sync/atomic"
	"time"

	"runstat/internal/sched"
)

// SpinWork returns a runnable that burns CPU for busy wall time, then blocks
// for rest ticks, forever. A preempted spin keeps its remaining budget for
// the next slice.
func SpinWork(busy time.Duration, rest int64) func(context.Context) error {
	remaining := busy
	return func(ctx context.Context) error {
		start := time.Now()
		for time.Since(start) < remaining {
			if ctx.Err() != nil {
				remaining -= time.Since(start)
				return ctx.Err()
			}
			spin()
		}
		remaining = busy
		return sched.Block(rest)
	}
}

var sink atomic.Uint64

func spin() {
	var x uint64
	for i := 0; i < 1000; i++ {
		x += uint64(i) ^ x<<1
	}
	sink.Add(x)
}
