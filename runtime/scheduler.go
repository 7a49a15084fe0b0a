/*
Package runtime runs language processes: N logical processes multiplexed
over M worker goroutines. Each worker takes the next ready process, runs
its machine for a fixed number of reductions, and then requeues, parks or
retires it depending on how the slice ended.
*/
package runtime

import (
	"context"
	"errors"
	"log/slog"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InsulaLabs/isl/db/journal"
	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/pkg/sys"
	"github.com/InsulaLabs/isl/vm"
	"golang.org/x/time/rate"
)

const DefaultReductions = 200

var (
	ErrSchedulerStopped = errors.New("scheduler stopped")
	ErrSchedulerStarted = errors.New("scheduler already started")
)

// NoProc is the exit reason reported to a late watcher once the target's
// exit record has aged out of the journal.
var NoProc = slp.NewSymbol("noproc")

type Config struct {
	Logger *slog.Logger
	Table  *sys.Table

	Workers    int // M; defaults to the number of CPUs
	Reductions int // R, the slice length in reductions
	MaxFrames  int

	// Journal receives exit records. When nil the scheduler keeps its own
	// in-memory journal with the given Retention and closes it on Stop.
	Journal   journal.Journal
	Retention time.Duration
}

type Scheduler struct {
	logger     *slog.Logger
	table      *sys.Table
	workers    int
	reductions int
	maxFrames  int

	journal     journal.Journal
	ownsJournal bool

	procsMu sync.RWMutex
	procs   map[slp.Pid]*Process
	retired map[slp.Pid]struct{}

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     fifo[*Process]
	stopped   bool

	liveMu sync.Mutex
	live   int
	idle   chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	dropped atomic.Uint64
	dropLog *rate.Limiter
}

func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Table == nil {
		config.Table = sys.Default(nil)
	}
	if config.Workers <= 0 {
		config.Workers = goruntime.NumCPU()
	}
	if config.Reductions <= 0 {
		config.Reductions = DefaultReductions
	}

	s := &Scheduler{
		logger:     config.Logger.WithGroup("scheduler"),
		table:      config.Table,
		workers:    config.Workers,
		reductions: config.Reductions,
		maxFrames:  config.MaxFrames,
		journal:    config.Journal,
		procs:      make(map[slp.Pid]*Process),
		retired:    make(map[slp.Pid]struct{}),
		idle:       make(chan struct{}),
		stopCh:     make(chan struct{}),
		// a burst of late messages must not flood the log
		dropLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	if s.journal == nil {
		s.journal = journal.NewMemory(config.Logger, config.Retention)
		s.ownsJournal = true
	}
	s.queueCond = sync.NewCond(&s.queueMu)
	return s
}

// Start launches the workers. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSchedulerStarted
	}
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()
	s.logger.Debug("scheduler started", "workers", s.workers, "reductions", s.reductions)
	return nil
}

// Stop halts the workers after their current slice. Processes that have
// not terminated are abandoned.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.queueMu.Lock()
		s.stopped = true
		s.queueCond.Broadcast()
		s.queueMu.Unlock()
		close(s.stopCh)

		s.wg.Wait()
		if s.ownsJournal {
			if err := s.journal.Close(); err != nil {
				s.logger.Error("failed to close journal", "error", err)
			}
		}
		s.logger.Debug("scheduler stopped")
	})
}

// Spawn starts a root process evaluating exprs from env.
func (s *Scheduler) Spawn(exprs []slp.Obj, env *slp.Env) (slp.Pid, error) {
	p, err := s.spawn(exprs, env)
	if err != nil {
		return slp.NilPid, err
	}
	return p.pid, nil
}

// Exec runs exprs as a root process and waits for it. A process that
// terminates instead of finishing is reported as an error: the escaped
// *slp.Error, or an *ExitError for an explicit terminate.
func (s *Scheduler) Exec(ctx context.Context, exprs []slp.Obj, env *slp.Env) (slp.Obj, *slp.Env, error) {
	p, err := s.spawn(exprs, env)
	if err != nil {
		return slp.Obj{}, nil, err
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return slp.Obj{}, nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil {
		return slp.Obj{}, nil, p.failure
	}
	if !p.finished {
		return slp.Obj{}, nil, &ExitError{Pid: p.pid, Reason: p.reason}
	}
	return p.result, p.env, nil
}

// Send delivers msg from outside of any process.
func (s *Scheduler) Send(to slp.Pid, msg slp.Obj) error {
	return s.send(slp.NilPid, to, slp.Copy(msg))
}

// Wait blocks until no process is live.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.liveMu.Lock()
	if s.live == 0 {
		s.liveMu.Unlock()
		return nil
	}
	idle := s.idle
	s.liveMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info reports on a live or retired process.
func (s *Scheduler) Info(pid slp.Pid) (Info, error) {
	s.procsMu.RLock()
	p, ok := s.procs[pid]
	_, gone := s.retired[pid]
	s.procsMu.RUnlock()

	switch {
	case ok:
		return p.info(), nil
	case gone:
		info := Info{Pid: pid, State: ProcessStateTerminated, Reason: NoProc}
		if rec, found := s.journal.Lookup(pid); found {
			info.Reason = rec.Reason
		}
		return info, nil
	default:
		return Info{}, slp.Raise(slp.ErrUnknownProcess, slp.NewPidObj(pid))
	}
}

// Processes lists the live processes.
func (s *Scheduler) Processes() []Info {
	s.procsMu.RLock()
	procs := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.procsMu.RUnlock()

	out := make([]Info, len(procs))
	for i, p := range procs {
		out[i] = p.info()
	}
	return out
}

type Stats struct {
	Live    int
	Retired int
	Dropped uint64
}

func (s *Scheduler) Stats() Stats {
	s.procsMu.RLock()
	defer s.procsMu.RUnlock()
	return Stats{
		Live:    len(s.procs),
		Retired: len(s.retired),
		Dropped: s.dropped.Load(),
	}
}

func (s *Scheduler) Journal() journal.Journal {
	return s.journal
}

func (s *Scheduler) spawn(exprs []slp.Obj, env *slp.Env) (*Process, error) {
	m := vm.New(vm.Config{
		Table:     s.table,
		Logger:    s.logger.WithGroup("process"),
		MaxFrames: s.maxFrames,
	})
	m.Load(exprs, env)
	return s.register(m, slp.NilPid)
}

func (s *Scheduler) register(m *vm.Machine, parent slp.Pid) (*Process, error) {
	s.queueMu.Lock()
	stopped := s.stopped
	s.queueMu.Unlock()
	if stopped {
		return nil, ErrSchedulerStopped
	}

	p := newProcess(m, parent)
	m.SetHost(&processHost{s: s, p: p})

	s.procsMu.Lock()
	s.procs[p.pid] = p
	s.procsMu.Unlock()

	s.liveMu.Lock()
	if s.live == 0 {
		s.idle = make(chan struct{})
	}
	s.live++
	s.liveMu.Unlock()

	s.logger.Debug("process registered", "pid", p.pid, "parent", parent)
	s.enqueue(p)
	return p, nil
}

func (s *Scheduler) enqueue(p *Process) {
	s.queueMu.Lock()
	s.queue.push(p)
	s.queueCond.Signal()
	s.queueMu.Unlock()
}

// dequeue blocks for the next ready process. It returns nil once the
// scheduler is stopped.
func (s *Scheduler) dequeue() *Process {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for s.queue.len() == 0 && !s.stopped {
		s.queueCond.Wait()
	}
	if s.stopped {
		return nil
	}
	p, _ := s.queue.pop()
	return p
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	s.logger.Debug("worker started", "worker", id)
	for {
		p := s.dequeue()
		if p == nil {
			s.logger.Debug("worker stopped", "worker", id)
			return
		}
		s.runSlice(p)
	}
}

func (s *Scheduler) runSlice(p *Process) {
	p.mu.Lock()
	if p.state == ProcessStateTerminated {
		p.mu.Unlock()
		return
	}
	p.state = ProcessStateRunning
	m := p.machine
	p.mu.Unlock()

	switch m.Run(s.reductions) {
	case vm.StatusYielded:
		p.mu.Lock()
		p.state = ProcessStateReady
		p.reductions = m.Reductions()
		p.mu.Unlock()
		s.enqueue(p)
	case vm.StatusBlocked:
		s.park(p, m)
	case vm.StatusDone:
		s.finalize(p, m, true)
	default:
		s.finalize(p, m, false)
	}
}

// park blocks p unless a message arrived while it was deciding to wait.
func (s *Scheduler) park(p *Process, m *vm.Machine) {
	p.mu.Lock()
	p.reductions = m.Reductions()
	if msg, ok := p.mailbox.pop(); ok {
		_ = m.Resume(msg)
		p.state = ProcessStateReady
		p.mu.Unlock()
		s.enqueue(p)
		return
	}
	p.state = ProcessStateBlocked
	p.mu.Unlock()
}

// deliver reports false when p has already terminated.
func (s *Scheduler) deliver(p *Process, msg slp.Obj) bool {
	p.mu.Lock()
	switch p.state {
	case ProcessStateTerminated:
		p.mu.Unlock()
		return false
	case ProcessStateBlocked:
		// the mailbox is empty whenever a process is parked
		_ = p.machine.Resume(msg)
		p.state = ProcessStateReady
		p.mu.Unlock()
		s.enqueue(p)
		return true
	default:
		p.mailbox.push(msg)
		p.mu.Unlock()
		return true
	}
}

func (s *Scheduler) lookup(pid slp.Pid) (p *Process, retired bool) {
	s.procsMu.RLock()
	defer s.procsMu.RUnlock()
	p = s.procs[pid]
	_, retired = s.retired[pid]
	return p, retired
}

// send drops messages to terminated processes. Only a pid that never
// existed is an error.
func (s *Scheduler) send(from, to slp.Pid, msg slp.Obj) error {
	p, retired := s.lookup(to)
	if p == nil {
		if !retired {
			return slp.Raise(slp.ErrUnknownProcess, slp.NewPidObj(to))
		}
		s.drop(from, to)
		return nil
	}
	if !s.deliver(p, msg) {
		s.drop(from, to)
	}
	return nil
}

func (s *Scheduler) drop(from, to slp.Pid) {
	n := s.dropped.Add(1)
	if s.dropLog.Allow() {
		s.logger.Warn("dropped message to terminated process", "from", from, "to", to, "total_dropped", n)
	}
}

// watch registers watcher on target. A target that already terminated
// notifies the watcher straight away.
func (s *Scheduler) watch(watcher, target slp.Pid) error {
	p, retired := s.lookup(target)
	switch {
	case p != nil:
		p.mu.Lock()
		if p.state != ProcessStateTerminated {
			p.addWatcher(watcher)
			p.mu.Unlock()
			return nil
		}
		reason := p.reason
		p.mu.Unlock()
		s.notify(watcher, target, reason)
	case retired:
		reason := NoProc
		if rec, found := s.journal.Lookup(target); found {
			reason = rec.Reason
		}
		s.notify(watcher, target, reason)
	default:
		return slp.Raise(slp.ErrUnknownProcess, slp.NewPidObj(target))
	}
	return nil
}

func (s *Scheduler) notify(watcher, target slp.Pid, reason slp.Obj) {
	if err := s.send(target, watcher, exitMessage(target, reason)); err != nil {
		s.logger.Error("failed to notify watcher", "watcher", watcher, "target", target, "error", err)
	}
}

// finalize retires p. Watchers are copied and the state set under p.mu,
// so a concurrent watch either lands in the copy or sees Terminated.
func (s *Scheduler) finalize(p *Process, m *vm.Machine, finished bool) {
	reason := m.Reason()
	if finished {
		reason = vm.NormalExit
	}

	p.mu.Lock()
	p.state = ProcessStateTerminated
	p.reason = reason
	p.failure = m.Failure()
	p.finished = finished
	if finished {
		p.result, p.env = m.Result()
	}
	p.reductions = m.Reductions()
	watchers := p.watchers
	p.watchers = nil
	pending := p.mailbox.len()
	p.mailbox.clear()
	p.machine = nil
	failure := p.failure
	p.mu.Unlock()

	if err := s.journal.Record(journal.Record{Pid: p.pid, Reason: reason}); err != nil {
		s.logger.Error("failed to record exit", "pid", p.pid, "error", err)
	}

	s.procsMu.Lock()
	delete(s.procs, p.pid)
	s.retired[p.pid] = struct{}{}
	s.procsMu.Unlock()

	if failure != nil {
		s.logger.Info("process failed", "pid", p.pid, "reason", reason.Encode(), "discarded", pending)
	} else {
		s.logger.Debug("process exited", "pid", p.pid, "reason", reason.Encode(), "discarded", pending)
	}

	for _, w := range watchers {
		s.notify(w, p.pid, reason)
	}
	close(p.done)

	s.liveMu.Lock()
	s.live--
	if s.live == 0 {
		close(s.idle)
	}
	s.liveMu.Unlock()
}
