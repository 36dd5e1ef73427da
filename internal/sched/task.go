package sched

import (
	"context"
	"errors"
	"fmt"

	"runstat/internal/runstat"
)

// TaskID uniquely identifies a live task in the scheduler. An ID may be
// reused once its task has finished or been deleted.
type TaskID uint64

const (
	MinPriority = 0
	MaxPriority = 40
)

// Task represents one schedulable task unit.
type Task struct {
	ID          TaskID
	Name        string
	Priority    int                             // base priority, 0 - 40, higher runs more often
	CurPriority int                             // effective priority, see AdjustPriority
	Weight      float64                         // computed as 1 + CurPriority
	Vruntime    float64                         // stored virtual time
	TIn         int64                           // tick when (re)queued or entered the scheduler queue for the first time
	StackMargin uint32                          // reported as-is in snapshots
	Run         func(ctx context.Context) error // work function (any kind, e.g. HTTP handler, DB txn stub, etc.)

	// owned by the scheduler, guarded by Scheduler.mu
	state    runstat.State
	unit     int
	runtime  uint64
	wakeTick uint64
	pending  pendingOp
}

type pendingOp int

const (
	pendingNone pendingOp = iota
	pendingSuspend
	pendingDelete
)

// NewTask creates a new task with proper weight and zeroed V.
// NOTE: TIn and Vruntime are set when the task is queued.
func NewTask(id TaskID, name string, priority int, work func(ctx context.Context) error) *Task {
	priority = clampPriority(priority)
	if name == "" {
		name = fmt.Sprintf("task%d", id)
	}

	return &Task{
		ID:          id,
		Name:        name,
		Priority:    priority,
		CurPriority: priority,
		Weight:      float64(1 + priority),
		Run:         work,
		state:       runstat.StateReady,
		unit:        runstat.Unassigned,
	}
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// entity converts the task into a snapshot record. Caller holds Scheduler.mu.
func (t *Task) entity() runstat.Entity {
	return runstat.Entity{
		Identity:        runstat.Identity(t.ID),
		Name:            t.Name,
		Unit:            t.unit,
		RuntimeCounter:  t.runtime,
		State:           t.state,
		StackMargin:     t.StackMargin,
		CurrentPriority: t.CurPriority,
		BasePriority:    t.Priority,
	}
}

// BlockError is returned by work that wants to leave the CPU for a
// number of ticks.
type BlockError struct {
	Ticks int64
}

func (e *BlockError) Error() string { return fmt.Sprintf("blocked for %d ticks", e.Ticks) }

// Block returns an error that makes the scheduler park the task as Blocked
// until Ticks ticks have elapsed.
func Block(ticks int64) error {
	if ticks < 1 {
		ticks = 1
	}
	return &BlockError{Ticks: ticks}
}

func asBlock(err error) (*BlockError, bool) {
	var b *BlockError
	ok := errors.As(err, &b)
	return b, ok
}
