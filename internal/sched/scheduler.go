// internal/sched/scheduler.go

package sched

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/emirpasic/gods/trees/redblacktree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"runstat/internal/runstat"
)

// IdleTaskID returns the reserved ID of a core's idle task.
func IdleTaskID(core int) TaskID { return TaskID(math.MaxUint64 - uint64(core)) }

// Scheduler implements a mini CFS-like scheduler over a fixed number of
// cores and exposes its task table as a runstat.Source.
type Scheduler struct {
	// Scheduler-related
	mu          sync.Mutex         // protects the scheduler state
	sliceTicks  int64              // number of ticks to run a task before preempting (minimum guaranteed time slice)
	clock       *TickClock         // clock for generating ticks
	now         uint64             // ticks accounted so far, the global runtime counter
	minVruntime float64            // minimum vruntime of all tasks in the run queue
	rbt         *redblacktree.Tree // red-black tree ordered by vruntime and task ID
	tasks       *linkedhashmap.Map // TaskID -> *Task, in creation order
	blocked     *binaryheap.Heap   // wakeEntry ordered by wake tick
	cores       []*core
	wake        chan struct{} // nudges idle workers
	running     atomic.Bool

	statusMu sync.RWMutex
	closed   bool
	statusCh chan StatusEvent // channel for status events

	// logging-related
	logger    *zap.Logger
	csvFile   *os.File
	csvWriter *csv.Writer
}

// core is one processing unit. Guarded by Scheduler.mu.
type core struct {
	id     int
	task   *Task
	used   int64 // ticks charged to task in the current slice
	cancel context.CancelFunc
	idle   *Task
}

type wakeEntry struct {
	tick uint64
	task *Task
}

// New creates a new Scheduler and starts its tick clock.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	cfg = cfg.Normalize()
	clock := NewTickClock(256) // buffer size for tick events
	s := NewWithClock(cfg, clock, logger)
	clock.Start(time.Duration(cfg.TickMS) * time.Millisecond)
	return s
}

// NewWithClock creates a Scheduler driven by a clock the caller controls.
func NewWithClock(cfg Config, clock *TickClock, logger *zap.Logger) *Scheduler {
	cfg = cfg.Normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		sliceTicks: int64(cfg.SliceTicks),
		clock:      clock,
		rbt:        redblacktree.NewWith(cmp),
		tasks:      linkedhashmap.New(),
		blocked: binaryheap.NewWith(func(a, b interface{}) int {
			ta, tb := a.(wakeEntry).tick, b.(wakeEntry).tick
			switch {
			case ta < tb:
				return -1
			case ta > tb:
				return 1
			default:
				return 0
			}
		}),
		wake:     make(chan struct{}, cfg.Cores),
		statusCh: make(chan StatusEvent, 256), // buffered channel for status events
		logger:   logger,
	}
	for i := 0; i < cfg.Cores; i++ {
		idle := NewTask(IdleTaskID(i), fmt.Sprintf("IDLE%d", i), MinPriority, nil)
		idle.unit = i
		s.cores = append(s.cores, &core{id: i, idle: idle})
	}
	return s
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	_ = w.Write([]string{"timestamp", "tick", "event", "task_id", "core", "ran_ticks", "vruntime"})
	w.Flush()
	s.csvFile = f
	s.csvWriter = w
	return nil
}

// Now returns the global runtime counter in ticks.
func (s *Scheduler) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Run drives the cores until ctx is done. It may be called only once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler already running")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tickLoop(gctx) })
	for _, c := range s.cores {
		c := c
		g.Go(func() error { return s.worker(gctx, c) })
	}

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		// stop the underlying clock to release its goroutine
		s.clock.Stop()
		s.closeStatus()
		done <- err
	}()

	// consume events
	for ev := range s.statusCh {
		s.handleEvent(ev)
	}

	if s.csvFile != nil {
		s.csvWriter.Flush()
		_ = s.csvFile.Close()
	}
	return <-done
}

// Add enqueues a task and emits a StatusEnqueue event.
func (s *Scheduler) Add(t *Task) error {
	s.mu.Lock()

	if t.ID >= IdleTaskID(len(s.cores)-1) {
		s.mu.Unlock()
		return fmt.Errorf("task id %d is reserved", t.ID)
	}
	if _, dup := s.tasks.Get(t.ID); dup {
		s.mu.Unlock()
		return fmt.Errorf("task %d already exists", t.ID)
	}

	t.Vruntime = s.minVruntime
	t.runtime = 0
	t.unit = runstat.Unassigned
	t.pending = pendingNone
	s.tasks.Put(t.ID, t)
	s.enqueue(t)

	eventData := StatusEvent{
		Time:     time.Now(),
		Kind:     StatusEnqueue,
		TaskID:   t.ID,
		Core:     runstat.Unassigned,
		Vruntime: t.Vruntime}
	s.mu.Unlock() // NOTE: Unlock before sending to avoid deadlock if the channel is full
	s.emit(eventData)
	s.signal()
	return nil
}

// AdjustPriority changes an existing task's current priority on the fly.
// The base priority is kept. A Ready task is requeued so future slices
// reflect the new weight.
func (s *Scheduler) AdjustPriority(id TaskID, newPriority int) error {
	s.mu.Lock()

	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	newPriority = clampPriority(newPriority)
	queued := t.state == runstat.StateReady
	if queued {
		s.rbt.Remove(nodeKey{t.Vruntime, t.ID})
	}
	t.CurPriority = newPriority
	t.Weight = float64(newPriority + 1)
	if queued {
		s.rbt.Put(nodeKey{vruntime: t.Vruntime, id: t.ID}, t)
	}
	ev := StatusEvent{
		Time:     time.Now(),
		Kind:     StatusPriorityUpdate,
		TaskID:   t.ID,
		Core:     t.unit,
		Vruntime: t.Vruntime,
	}
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// Suspend removes a task from scheduling until Resume. A running task is
// suspended when its work returns.
func (s *Scheduler) Suspend(id TaskID) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	switch t.state {
	case runstat.StateReady:
		s.rbt.Remove(nodeKey{t.Vruntime, t.ID})
		t.state = runstat.StateSuspended
	case runstat.StateBlocked:
		t.state = runstat.StateSuspended
	case runstat.StateRunning:
		t.pending = pendingSuspend
		s.interrupt(t)
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return nil
	}
	ev := StatusEvent{Time: time.Now(), Kind: StatusSuspend, TaskID: t.ID, Core: t.unit, Vruntime: t.Vruntime}
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// Resume makes a suspended task Ready again.
func (s *Scheduler) Resume(id TaskID) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if t.state == runstat.StateRunning && t.pending == pendingSuspend {
		t.pending = pendingNone
	}
	if t.state != runstat.StateSuspended {
		s.mu.Unlock()
		return nil
	}
	s.enqueue(t)
	ev := StatusEvent{Time: time.Now(), Kind: StatusResume, TaskID: t.ID, Core: t.unit, Vruntime: t.Vruntime}
	s.mu.Unlock()

	s.emit(ev)
	s.signal()
	return nil
}

// Delete removes a task. A running task is removed when its work returns.
func (s *Scheduler) Delete(id TaskID) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if t.state == runstat.StateRunning {
		t.pending = pendingDelete
		s.interrupt(t)
		s.mu.Unlock()
		return nil
	}
	if t.state == runstat.StateReady {
		s.rbt.Remove(nodeKey{t.Vruntime, t.ID})
	}
	s.remove(t)
	ev := StatusEvent{Time: time.Now(), Kind: StatusDelete, TaskID: t.ID, Core: t.unit, Vruntime: t.Vruntime}
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// EntityCount reports the number of live tasks, idle tasks included.
func (s *Scheduler) EntityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Size() + len(s.cores)
}

// Fill copies every live task into buf under the scheduler lock, so one
// fill is internally consistent. Like uxTaskGetSystemState it fills
// nothing when buf is too small.
func (s *Scheduler) Fill(buf []runstat.Entity) (int, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks.Size()+len(s.cores) > len(buf) {
		return 0, s.now
	}
	n := 0
	it := s.tasks.Iterator()
	for it.Next() {
		buf[n] = it.Value().(*Task).entity()
		n++
	}
	for _, c := range s.cores {
		buf[n] = c.idle.entity()
		n++
	}
	return n, s.now
}

// tickLoop charges every tick to the task running on each core, or to the
// core's idle task, preempts expired slices and wakes blocked tasks.
func (s *Scheduler) tickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.Ch:
			s.account()
		}
	}
}

func (s *Scheduler) account() {
	s.mu.Lock()
	s.now++
	for _, c := range s.cores {
		if c.task == nil {
			c.idle.runtime++
			continue
		}
		c.task.runtime++
		c.used++
		if c.used >= s.sliceTicks && c.cancel != nil {
			c.cancel() // slice expired
			c.cancel = nil
		}
	}

	var events []StatusEvent
	for s.blocked.Size() > 0 {
		top, _ := s.blocked.Peek()
		e := top.(wakeEntry)
		if e.tick > s.now {
			break
		}
		s.blocked.Pop()
		// stale entry: the task was suspended, deleted or re-blocked since
		if e.task.state != runstat.StateBlocked || e.task.wakeTick != e.tick {
			continue
		}
		s.enqueue(e.task)
		events = append(events, StatusEvent{Time: time.Now(), Kind: StatusWake, TaskID: e.task.ID, Core: e.task.unit, Vruntime: e.task.Vruntime})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
		s.signal()
	}
	s.emit(StatusEvent{Time: time.Now(), Kind: StatusTick})
}

// worker runs the dispatch loop of one core.
func (s *Scheduler) worker(ctx context.Context, c *core) error {
	for {
		t, runCtx, cancel := s.dispatch(ctx, c)
		if t == nil {
			return nil
		}

		// emit dispatch event
		s.emit(StatusEvent{
			Time:     time.Now(),
			Kind:     StatusDispatch,
			TaskID:   t.ID,
			Core:     c.id,
			Vruntime: t.Vruntime,
		})

		// The tick loop cancels runCtx once the slice is used up.
		err := t.Run(runCtx)
		cancel()
		s.retire(c, t, err)
	}
}

// dispatch blocks until a task is ready for core c or ctx is done.
func (s *Scheduler) dispatch(ctx context.Context, c *core) (*Task, context.Context, context.CancelFunc) {
	for {
		if ctx.Err() != nil {
			return nil, nil, nil
		}
		s.mu.Lock()
		if node := s.rbt.Left(); node != nil {
			key := node.Key.(nodeKey)
			t := node.Value.(*Task)
			s.rbt.Remove(key)
			s.minVruntime = key.vruntime

			runCtx, cancel := context.WithCancel(ctx)
			c.task, c.used, c.cancel = t, 0, cancel
			t.state = runstat.StateRunning
			t.unit = c.id
			c.idle.state = runstat.StateReady
			s.mu.Unlock()
			return t, runCtx, cancel
		}
		fellIdle := c.idle.state != runstat.StateRunning
		c.idle.state = runstat.StateRunning
		s.mu.Unlock()
		if fellIdle {
			s.emit(StatusEvent{Time: time.Now(), Kind: StatusIdle, TaskID: c.idle.ID, Core: c.id})
		}

		select {
		case <-ctx.Done():
			return nil, nil, nil
		case <-s.wake:
		}
	}
}

// retire updates vruntime and decides where a task goes after its work
// returned on core c.
func (s *Scheduler) retire(c *core, t *Task, err error) {
	s.mu.Lock()
	ranTicks := c.used
	c.task, c.used, c.cancel = nil, 0, nil

	charged := ranTicks
	if charged <= 0 {
		charged = 1
	}
	t.Vruntime += float64(charged) / t.Weight

	ev := StatusEvent{Time: time.Now(), TaskID: t.ID, Core: c.id, RanTicks: ranTicks}
	blk, blocked := asBlock(err)
	requeued := false
	switch {
	case t.pending == pendingDelete:
		s.remove(t)
		ev.Kind = StatusDelete
	case err == nil:
		s.remove(t)
		ev.Kind = StatusFinish
	case t.pending == pendingSuspend:
		t.state = runstat.StateSuspended
		ev.Kind = StatusSuspend
	case blocked:
		t.state = runstat.StateBlocked
		t.wakeTick = s.now + uint64(blk.Ticks)
		s.blocked.Push(wakeEntry{tick: t.wakeTick, task: t})
		ev.Kind = StatusBlock
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.enqueue(t)
		requeued = true
		ev.Kind = StatusPreempt
	default:
		s.remove(t)
		ev.Kind = StatusFail
		ev.Err = err
	}
	t.pending = pendingNone

	// also, update the minimum vruntime in the rbtree after requeueing
	if first := s.rbt.Left(); first != nil {
		s.minVruntime = first.Key.(nodeKey).vruntime
	}
	ev.Vruntime = t.Vruntime
	s.mu.Unlock()

	s.emit(ev)
	if requeued {
		s.signal()
	}
}

// lookup returns a live task. Caller holds s.mu.
func (s *Scheduler) lookup(id TaskID) (*Task, error) {
	v, ok := s.tasks.Get(id)
	if !ok {
		return nil, fmt.Errorf("no such task %d", id)
	}
	return v.(*Task), nil
}

// enqueue puts t on the run queue as Ready. Caller holds s.mu.
func (s *Scheduler) enqueue(t *Task) {
	if t.Vruntime < s.minVruntime {
		t.Vruntime = s.minVruntime
	}
	t.state = runstat.StateReady
	t.TIn = int64(s.now)
	s.rbt.Put(nodeKey{vruntime: t.Vruntime, id: t.ID}, t)
}

// remove drops t from the task table. Caller holds s.mu.
func (s *Scheduler) remove(t *Task) {
	t.state = runstat.StateDeleted
	s.tasks.Remove(t.ID)
}

// interrupt cancels the slice of a running task. Caller holds s.mu.
func (s *Scheduler) interrupt(t *Task) {
	if t.unit < 0 || t.unit >= len(s.cores) {
		return
	}
	if c := s.cores[t.unit]; c.task == t && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// emit publishes ev without blocking; events are dropped when the channel
// is full or already closed.
func (s *Scheduler) emit(ev StatusEvent) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.statusCh <- ev:
	default:
	}
}

func (s *Scheduler) closeStatus() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.statusCh)
	}
}

func (s *Scheduler) handleEvent(ev StatusEvent) {
	// if we received a tick event which periodically occurs,
	// we can just return early and not log it for the brevity of output.
	if ev.Kind == StatusTick {
		return
	}

	tick := s.clock.Count()
	fields := []zap.Field{
		zap.Int64("tick", tick),
		zap.String("event", ev.Kind.String()),
		zap.Uint64("task_id", uint64(ev.TaskID)),
		zap.Int("core", ev.Core),
		zap.Int64("ran_ticks", ev.RanTicks),
		zap.Float64("vruntime", ev.Vruntime),
	}
	if ev.Kind == StatusFail {
		s.logger.Warn("task failed", append(fields, zap.Error(ev.Err))...)
	} else {
		s.logger.Debug("scheduler event", fields...)
	}

	// CSV output
	if s.csvWriter != nil {
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatInt(tick, 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			strconv.Itoa(ev.Core),
			strconv.FormatInt(ev.RanTicks, 10),
			fmt.Sprintf("%.4f", ev.Vruntime),
		}
		_ = s.csvWriter.Write(rec)
		s.csvWriter.Flush()
	}
}

// nodeKey is used as a key in the red-black tree.
type nodeKey struct {
	vruntime float64
	id       TaskID
}

// nodeKey implements the Comparable interface for red-black tree ordering.
func cmp(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.vruntime < kb.vruntime:
		return -1
	case ka.vruntime > kb.vruntime:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}
