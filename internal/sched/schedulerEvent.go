// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusDispatch
	StatusPreempt
	StatusFinish
	StatusTick
	StatusPriorityUpdate
	StatusBlock
	StatusWake
	StatusSuspend
	StatusResume
	StatusDelete
	StatusFail
)

// StatusEvent is emitted every tick or on key actions
type StatusEvent struct {
	Time     time.Time
	Kind     StatusKind
	TaskID   TaskID
	Core     int
	Vruntime float64
	RanTicks int64
	Err      error
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusFinish:
		return "Finish"
	case StatusTick:
		return "Tick"
	case StatusPriorityUpdate:
		return "Priority"
	case StatusBlock:
		return "Block"
	case StatusWake:
		return "Wake"
	case StatusSuspend:
		return "Suspend"
	case StatusResume:
		return "Resume"
	case StatusDelete:
		return "Delete"
	case StatusFail:
		return "Fail"
	default:
		return "Unknown"
	}
}
