// internal/monitor/monitor.go

package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"runstat/internal/runstat"
)

// Phase is the position of the driver within one sampling cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSamplingStart
	PhaseWaiting
	PhaseProcessing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseSamplingStart:
		return "SamplingStart"
	case PhaseWaiting:
		return "Waiting"
	case PhaseProcessing:
		return "Processing"
	default:
		return "Unknown"
	}
}

// Config mirrors the monitor section of the config file.
type Config struct {
	Window time.Duration // between the two captures of a cycle
	Delay  time.Duration // between cycles
	Units  int           // processing units of the host
}

// Outcome is what the driver publishes after every cycle.
type Outcome struct {
	Cycle    uint64
	Started  time.Time
	Finished time.Time
	Report   *runstat.Report // nil when Err is set
	Err      error
}

// Reporter receives one Outcome per cycle.
type Reporter interface {
	Publish(Outcome)
}

// Stats counts finished cycles.
type Stats struct {
	Succeeded uint64
	Failed    uint64
}

// Monitor is the periodic driver: capture, wait, capture, match,
// aggregate, report, delay, repeat.
type Monitor struct {
	cfg      Config
	capturer *runstat.Capturer
	reporter Reporter
	logger   *zap.Logger

	phase     atomic.Int32
	cycle     atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor. reporter and logger may be nil.
func New(cfg Config, capturer *runstat.Capturer, reporter Reporter, logger *zap.Logger) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Units < 1 {
		cfg.Units = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:      cfg,
		capturer: capturer,
		reporter: reporter,
		logger:   logger.Named("monitor"),
	}
}

// Phase returns the current phase.
func (m *Monitor) Phase() Phase { return Phase(m.phase.Load()) }

// Stats returns the number of succeeded and failed cycles so far.
func (m *Monitor) Stats() Stats {
	return Stats{Succeeded: m.succeeded.Load(), Failed: m.failed.Load()}
}

// Running reports whether the background loop is alive.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

// Start launches the background loop. It returns false, and does nothing,
// when the loop is already running.
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return false
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	m.logger.Info("monitor started",
		zap.Duration("window", m.cfg.Window),
		zap.Duration("delay", m.cfg.Delay),
		zap.Int("units", m.cfg.Units))
	return true
}

// Stop cancels the loop and waits for it to exit. The monitor can be
// started again afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	<-done
}

// Wait blocks until the background loop exits.
func (m *Monitor) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.phase.Store(int32(PhaseIdle))
		// a loop ended by its parent context leaves the monitor startable
		m.mu.Lock()
		if m.done == done {
			m.cancel()
			m.cancel, m.done = nil, nil
		}
		m.mu.Unlock()
		close(done)
	}()

	for {
		m.RunCycle(ctx)
		if ctx.Err() != nil {
			m.logger.Info("monitor stopped")
			return
		}
		if !sleep(ctx, m.cfg.Delay) {
			m.logger.Info("monitor stopped")
			return
		}
	}
}

// RunCycle performs one sampling pass, publishes its Outcome and returns
// the report. A failed cycle returns the error and a nil report. A cycle
// cut short by ctx returns ctx.Err() and is neither counted nor published.
func (m *Monitor) RunCycle(ctx context.Context) (*runstat.Report, error) {
	out := Outcome{Cycle: m.cycle.Add(1), Started: time.Now()}
	out.Report, out.Err = m.sample(ctx)
	out.Finished = time.Now()
	m.phase.Store(int32(PhaseIdle))

	if out.Err != nil && ctx.Err() != nil && errors.Is(out.Err, ctx.Err()) {
		m.logger.Info("sampling cycle canceled", zap.Uint64("cycle", out.Cycle))
		return nil, out.Err
	}
	if out.Err != nil {
		m.failed.Add(1)
		m.logger.Warn("error getting real time stats",
			zap.Uint64("cycle", out.Cycle),
			zap.String("kind", runstat.Kind(out.Err)),
			zap.Error(out.Err))
	} else {
		m.succeeded.Add(1)
		m.logger.Info("real time stats obtained",
			zap.Uint64("cycle", out.Cycle),
			zap.Uint64("window_ticks", out.Report.Window),
			zap.Int("tasks", len(out.Report.Tasks)),
			zap.Int("created", len(out.Report.Created)),
			zap.Int("deleted", len(out.Report.Deleted)))
	}
	if m.reporter != nil {
		m.reporter.Publish(out)
	}
	return out.Report, out.Err
}

func (m *Monitor) sample(ctx context.Context) (*runstat.Report, error) {
	m.phase.Store(int32(PhaseSamplingStart))
	start, err := m.capturer.Capture()
	if err != nil {
		return nil, err
	}

	m.phase.Store(int32(PhaseWaiting))
	if !sleep(ctx, m.cfg.Window) {
		return nil, ctx.Err()
	}

	m.phase.Store(int32(PhaseProcessing))
	end, err := m.capturer.Capture()
	if err != nil {
		return nil, err
	}
	res, err := runstat.Match(start, end)
	if err != nil {
		return nil, err
	}
	return runstat.Aggregate(res, m.cfg.Units), nil
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
