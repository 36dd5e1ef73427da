// internal/runstat/capture.go

package runstat

import "fmt"

const (
	// DefaultSlack tolerates tasks created between EntityCount and Fill.
	DefaultSlack = 5
	// DefaultMaxEntities bounds a single capture buffer.
	DefaultMaxEntities = 4096
)

// Capturer takes snapshots from a Source.
type Capturer struct {
	Source      Source
	Slack       int // extra slots beyond EntityCount (default DefaultSlack)
	MaxEntities int // buffer ceiling (default DefaultMaxEntities)
}

// NewCapturer returns a Capturer with default slack and ceiling.
func NewCapturer(src Source) *Capturer {
	return &Capturer{Source: src, Slack: DefaultSlack, MaxEntities: DefaultMaxEntities}
}

// Capture sizes a buffer for the current entity count plus slack, asks the
// source to fill it, and validates the result. It does not sleep.
func (c *Capturer) Capture() (*Snapshot, error) {
	slack := c.Slack
	if slack < 0 {
		slack = 0
	}
	limit := c.MaxEntities
	if limit <= 0 {
		limit = DefaultMaxEntities
	}

	capacity := c.Source.EntityCount() + slack
	buf, err := allocate(capacity, limit)
	if err != nil {
		return nil, err
	}

	filled, total := c.Source.Fill(buf)
	if filled <= 0 || filled > len(buf) {
		return nil, fmt.Errorf("%w: filled %d of %d", ErrInvalidSize, filled, len(buf))
	}
	buf = buf[:filled:filled]

	seen := make(map[Identity]struct{}, filled)
	for i := range buf {
		id := buf[i].Identity
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w %d (%q)", ErrDuplicateIdentity, id, buf[i].Name)
		}
		seen[id] = struct{}{}
	}

	return &Snapshot{Entities: buf, TotalRuntime: total}, nil
}

// allocate returns a zeroed buffer of n entities or ErrAllocationFailed.
func allocate(n, limit int) (buf []Entity, err error) {
	if n < 0 || n > limit {
		return nil, fmt.Errorf("%w: %d entries (limit %d)", ErrAllocationFailed, n, limit)
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %v", ErrAllocationFailed, r)
		}
	}()
	return make([]Entity, n), nil
}
