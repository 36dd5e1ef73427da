// internal/runstat/aggregate.go

package runstat

import (
	"math"
	"math/bits"
)

// Usage is the utilization of one matched entity over the window.
type Usage struct {
	Entity  Entity // start record
	Elapsed uint64
	Percent uint64 // of total capacity across all units
}

// Report is the aggregated result of one interval.
type Report struct {
	Window      uint64
	Units       int
	Tasks       []Usage
	Created     []Entity
	Deleted     []Entity
	UnitElapsed []uint64
	UnitPercent []uint64 // of one unit's capacity
}

// Aggregate converts an interval into per-entity and per-unit percentages.
// Percentages are floored integers. units below 1 are treated as 1.
func Aggregate(res *IntervalResult, units int) *Report {
	if units < 1 {
		units = 1
	}
	rep := &Report{
		Window:      res.WindowRuntime,
		Units:       units,
		Tasks:       make([]Usage, 0, len(res.Matched)),
		Created:     append([]Entity(nil), res.Created...),
		Deleted:     append([]Entity(nil), res.Deleted...),
		UnitElapsed: make([]uint64, units),
		UnitPercent: make([]uint64, units),
	}

	for _, p := range res.Matched {
		// floor(floor(x/w)/u) == floor(x/(w*u)), without forming w*u
		pct := percentOf(p.Elapsed, res.WindowRuntime) / uint64(units)
		rep.Tasks = append(rep.Tasks, Usage{Entity: p.Start, Elapsed: p.Elapsed, Percent: pct})

		if u := p.Start.Unit; u >= 0 && u < units {
			rep.UnitElapsed[u] += p.Elapsed
		}
	}
	for u, elapsed := range rep.UnitElapsed {
		rep.UnitPercent[u] = percentOf(elapsed, res.WindowRuntime)
	}
	return rep
}

// percentOf returns floor(n*100/d) using a 128-bit product. d must be > 0.
func percentOf(n, d uint64) uint64 {
	hi, lo := bits.Mul64(n, 100)
	if hi >= d {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}
