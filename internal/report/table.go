package report

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/fatih/color"

	"runstat/internal/monitor"
	"runstat/internal/runstat"
)

var (
	createdColor = color.New(color.FgGreen).SprintFunc()
	deletedColor = color.New(color.FgRed).SprintFunc()
	errorColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	headingColor = color.New(color.FgWhite, color.Bold).SprintFunc()
)

const (
	tableHeader = "| %-16s | %-10s | %-10s | %-8s | %-16s | %-6s | %-8s | %-8s |\n"
	tableRow    = "| %-16s | %-10s | %-10d | %-7d%% | %-16d | %-6s | %-8d | %-8d |\n"
	tableRule   = "|------------------|------------|------------|----------|------------------|--------|----------|----------|\n"
)

// Table renders each outcome as a console table.
type Table struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTable writes tables to w.
func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

// Publish implements monitor.Reporter.
func (t *Table) Publish(o monitor.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if o.Err != nil {
		fmt.Fprintf(t.w, "\n%s: %v\n", errorColor("Error getting real time stats"), o.Err)
		return
	}
	r := o.Report
	fmt.Fprintf(t.w, "\n%s\n", headingColor(fmt.Sprintf("Real time stats over %d ticks (cycle %d)", r.Window, o.Cycle)))
	fmt.Fprintf(t.w, tableHeader, "Task", "Core", "Run Time", "Percent", "Stack Watermark", "State", "CurPrio", "BasePrio")
	fmt.Fprint(t.w, tableRule)
	for _, u := range r.Tasks {
		e := u.Entity
		fmt.Fprintf(t.w, tableRow, e.Name, unitLabel(e.Unit), u.Elapsed, u.Percent, e.StackMargin, e.State, e.CurrentPriority, e.BasePriority)
	}
	for _, e := range r.Deleted {
		fmt.Fprintf(t.w, "| %s | %s\n", e.Name, deletedColor("Deleted"))
	}
	for _, e := range r.Created {
		fmt.Fprintf(t.w, "| %s | %s\n", e.Name, createdColor("Created"))
	}

	fmt.Fprint(t.w, "\nPer-core overall CPU usage:\n")
	for core, pct := range r.UnitPercent {
		fmt.Fprintf(t.w, "Core %d: %d%%\n", core, pct)
	}
	fmt.Fprintln(t.w, "Real time stats obtained")
}

func unitLabel(u int) string {
	if u == runstat.Unassigned {
		return "-"
	}
	return strconv.Itoa(u)
}
