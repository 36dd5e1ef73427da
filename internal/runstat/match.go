// internal/runstat/match.go

package runstat

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Pair is one entity present in both snapshots of an interval.
type Pair struct {
	Start   Entity
	End     Entity
	Elapsed uint64
}

// IntervalResult partitions the identities of two snapshots. Each list keeps
// the order of the snapshot it came from.
type IntervalResult struct {
	Matched       []Pair
	Deleted       []Entity // only in start
	Created       []Entity // only in end
	WindowRuntime uint64
}

// Match pairs the entities of start and end by identity.
func Match(start, end *Snapshot) (*IntervalResult, error) {
	if end.TotalRuntime < start.TotalRuntime {
		return nil, &RegressionError{Regressions: []Regression{{
			Start:  start.TotalRuntime,
			End:    end.TotalRuntime,
			Global: true,
		}}}
	}
	window := end.TotalRuntime - start.TotalRuntime
	if window == 0 {
		return nil, fmt.Errorf("%w: total runtime %d unchanged", ErrDegenerateWindow, end.TotalRuntime)
	}

	// index of unconsumed end entities, in end order
	pending := linkedhashmap.New()
	for i := range end.Entities {
		pending.Put(end.Entities[i].Identity, i)
	}

	res := &IntervalResult{WindowRuntime: window}
	var regressed []Regression
	for _, s := range start.Entities {
		v, ok := pending.Get(s.Identity)
		if !ok {
			res.Deleted = append(res.Deleted, s)
			continue
		}
		pending.Remove(s.Identity)

		e := end.Entities[v.(int)]
		if e.RuntimeCounter < s.RuntimeCounter {
			regressed = append(regressed, Regression{
				Identity: s.Identity,
				Name:     s.Name,
				Start:    s.RuntimeCounter,
				End:      e.RuntimeCounter,
			})
			continue
		}
		res.Matched = append(res.Matched, Pair{Start: s, End: e, Elapsed: e.RuntimeCounter - s.RuntimeCounter})
	}
	if len(regressed) > 0 {
		return nil, &RegressionError{Regressions: regressed}
	}

	for _, v := range pending.Values() {
		res.Created = append(res.Created, end.Entities[v.(int)])
	}
	return res, nil
}
