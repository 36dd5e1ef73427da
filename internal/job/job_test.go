package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"runstat/internal/sched"
)

func TestSpinWorkBlocksWhenBudgetSpent(t *testing.T) {
	work := SpinWork(2*time.Millisecond, 7)
	err := work(context.Background())

	var blk *sched.BlockError
	require.True(t, errors.As(err, &blk))
	assert.Equal(t, int64(7), blk.Ticks)
}

func TestSpinWorkYieldsOnPreempt(t *testing.T) {
	work := SpinWork(time.Hour, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := work(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSleepWorkFinishes(t *testing.T) {
	work := SleepWork(time.Millisecond)
	assert.NoError(t, work(context.Background()))
	assert.NoError(t, work(context.Background()), "a spent budget finishes at once")
}

func TestSleepWorkCarriesRemainingTime(t *testing.T) {
	work := SleepWork(200 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, work(ctx), context.DeadlineExceeded)

	start := time.Now()
	require.NoError(t, work(context.Background()))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestSleepTaskLeavesScheduler(t *testing.T) {
	clock := sched.NewTickClock(64)
	s := sched.NewWithClock(sched.Config{TickMS: 1, SliceTicks: 5, Cores: 1}, clock, zaptest.NewLogger(t))
	require.NoError(t, s.Add(sched.NewTask(1, "sleep0", 1, SleepWork(time.Millisecond))))
	require.Equal(t, 2, s.EntityCount())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.EntityCount() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
