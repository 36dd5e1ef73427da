package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickClockCountsDroppedTicks(t *testing.T) {
	c := NewTickClock(1)
	c.Tick()
	c.Tick() // channel full, still counted
	assert.Equal(t, int64(2), c.Count())
	assert.Len(t, c.Ch, 1)
}

func TestTickClockStart(t *testing.T) {
	c := NewTickClock(16)
	c.Start(time.Millisecond)
	require.Eventually(t, func() bool { return c.Count() >= 3 }, 2*time.Second, time.Millisecond)
	c.Stop()
	c.Stop()
}

func TestNewTaskClampsPriority(t *testing.T) {
	assert.Equal(t, MaxPriority, NewTask(1, "", 100, nil).Priority)
	assert.Equal(t, MinPriority, NewTask(1, "", -3, nil).Priority)
	assert.Equal(t, "task1", NewTask(1, "", 0, nil).Name)
	assert.Equal(t, 4.0, NewTask(1, "x", 3, nil).Weight)
}

func TestConfigNormalize(t *testing.T) {
	c := Config{}.Normalize()
	assert.Equal(t, Config{TickMS: 5, SliceTicks: 5, Cores: 1}, c)
}

func TestStatusKindString(t *testing.T) {
	assert.Equal(t, "Block", StatusBlock.String())
	assert.Equal(t, "Unknown", StatusKind(99).String())
}
