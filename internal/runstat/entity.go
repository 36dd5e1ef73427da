// internal/runstat/entity.go

package runstat

// Identity is the stable handle of one schedulable task for its lifetime.
type Identity uint64

// Unassigned marks an entity that has not run on any core yet.
const Unassigned = -1

// State is the scheduler state of an entity at capture time.
type State int

const (
	StateRunning State = iota
	StateReady
	StateBlocked
	StateSuspended
	StateDeleted
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUN"
	case StateReady:
		return "RDY"
	case StateBlocked:
		return "BLK"
	case StateSuspended:
		return "SUS"
	case StateDeleted:
		return "DEL"
	default:
		return "UNK"
	}
}

// Entity is one task record captured at an instant.
type Entity struct {
	Identity        Identity
	Name            string
	Unit            int    // core the task last ran on, or Unassigned
	RuntimeCounter  uint64 // cumulative ticks consumed since creation
	State           State
	StackMargin     uint32
	CurrentPriority int
	BasePriority    int
}

// Snapshot is the full set of live entities plus the global runtime
// counter, captured together. It is read-only once built.
type Snapshot struct {
	Entities     []Entity
	TotalRuntime uint64
}

// Len returns the number of captured entities.
func (s *Snapshot) Len() int { return len(s.Entities) }

// Source is implemented by the host scheduler.
//
// Fill must not write past len(buf) and must return an internally
// consistent set of entities. Two calls to Fill may disagree.
type Source interface {
	EntityCount() int
	Fill(buf []Entity) (filled int, totalRuntime uint64)
}
