package report

import (
	"runstat/internal/metrics"
	"runstat/internal/monitor"
	"runstat/internal/runstat"
)

// Prometheus mirrors every outcome into the collectors of package metrics.
// metrics.Register must have been called for the values to be recorded.
type Prometheus struct{}

// Publish implements monitor.Reporter.
func (Prometheus) Publish(o monitor.Outcome) {
	metrics.IncCycle(runstat.Kind(o.Err))
	if o.Err != nil {
		return
	}

	r := o.Report
	metrics.SetWindow(r.Window)
	metrics.ResetTasks()
	for _, u := range r.Tasks {
		metrics.SetTask(uint64(u.Entity.Identity), u.Entity.Name, u.Percent, u.Elapsed)
	}
	for core, pct := range r.UnitPercent {
		metrics.SetCore(core, pct)
	}
	metrics.AddCreated(len(r.Created))
	metrics.AddDeleted(len(r.Deleted))
}

// Multi fans one outcome out to several reporters, in order.
type Multi []monitor.Reporter

// Publish implements monitor.Reporter.
func (m Multi) Publish(o monitor.Outcome) {
	for _, r := range m {
		if r != nil {
			r.Publish(o)
		}
	}
}
