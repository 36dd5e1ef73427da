package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"runstat/internal/monitor"
	"runstat/internal/runstat"
)

// CSV appends one row per task and outcome to a file.
type CSV struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSV creates path and writes the header row.
func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "cycle", "kind", "task_id", "name", "core", "elapsed", "percent", "state"}); err != nil {
		_ = f.Close()
		return nil, err
	}
	w.Flush()
	return &CSV{file: f, writer: w}, nil
}

// Publish implements monitor.Reporter.
func (c *CSV) Publish(o monitor.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := o.Finished.Format(time.RFC3339Nano)
	cycle := strconv.FormatUint(o.Cycle, 10)
	if o.Err != nil {
		_ = c.writer.Write([]string{ts, cycle, "error", "", runstat.Kind(o.Err), "", "", "", ""})
		c.writer.Flush()
		return
	}

	for _, u := range o.Report.Tasks {
		c.row(ts, cycle, "task", u.Entity, strconv.FormatUint(u.Elapsed, 10), strconv.FormatUint(u.Percent, 10))
	}
	for _, e := range o.Report.Deleted {
		c.row(ts, cycle, "deleted", e, "", "")
	}
	for _, e := range o.Report.Created {
		c.row(ts, cycle, "created", e, "", "")
	}
	for core, pct := range o.Report.UnitPercent {
		_ = c.writer.Write([]string{ts, cycle, "core", "", "", strconv.Itoa(core),
			strconv.FormatUint(o.Report.UnitElapsed[core], 10), strconv.FormatUint(pct, 10), ""})
	}
	c.writer.Flush()
}

func (c *CSV) row(ts, cycle, kind string, e runstat.Entity, elapsed, percent string) {
	_ = c.writer.Write([]string{
		ts, cycle, kind,
		strconv.FormatUint(uint64(e.Identity), 10),
		e.Name,
		strconv.Itoa(e.Unit),
		elapsed, percent,
		e.State.String(),
	})
}

// Close flushes and closes the file.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return err
	}
	return c.file.Close()
}
