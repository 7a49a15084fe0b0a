package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/vm"
)

type ProcessState int

const (
	ProcessStateReady ProcessState = iota
	ProcessStateRunning
	ProcessStateBlocked
	ProcessStateTerminated
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStateReady:
		return "ready"
	case ProcessStateRunning:
		return "running"
	case ProcessStateBlocked:
		return "blocked"
	case ProcessStateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Process is one logical process. The machine is touched only by the
// worker running it, or under mu while the process is Blocked.
type Process struct {
	pid       slp.Pid
	parent    slp.Pid
	createdAt time.Time

	machine *vm.Machine

	mu         sync.Mutex
	state      ProcessState
	mailbox    fifo[slp.Obj]
	watchers   []slp.Pid
	reason     slp.Obj
	failure    *slp.Error
	finished   bool // ran out of work rather than terminating
	result     slp.Obj
	env        *slp.Env
	reductions uint64

	done chan struct{}
}

func newProcess(m *vm.Machine, parent slp.Pid) *Process {
	return &Process{
		pid:       slp.NewPid(),
		parent:    parent,
		createdAt: time.Now(),
		machine:   m,
		state:     ProcessStateReady,
		done:      make(chan struct{}),
	}
}

func (p *Process) Pid() slp.Pid {
	return p.pid
}

// Done is closed once the process has terminated and its watchers have
// been notified.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Info is a point in time view of a process.
type Info struct {
	Pid        slp.Pid
	Parent     slp.Pid
	State      ProcessState
	Mailbox    int
	Watchers   int
	Reductions uint64
	Reason     slp.Obj
	CreatedAt  time.Time
}

func (p *Process) info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	reductions := p.reductions
	if p.state != ProcessStateRunning && p.machine != nil {
		reductions = p.machine.Reductions()
	}
	return Info{
		Pid:        p.pid,
		Parent:     p.parent,
		State:      p.state,
		Mailbox:    p.mailbox.len(),
		Watchers:   len(p.watchers),
		Reductions: reductions,
		Reason:     p.reason,
		CreatedAt:  p.createdAt,
	}
}

func (p *Process) addWatcher(w slp.Pid) {
	for _, existing := range p.watchers {
		if existing == w {
			return
		}
	}
	p.watchers = append(p.watchers, w)
}

// ExitError reports a root process that terminated instead of finishing.
type ExitError struct {
	Pid    slp.Pid
	Reason slp.Obj
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %s terminated: %s", e.Pid, e.Reason.Encode())
}

// exitMessage is what watchers receive: (exit <pid> <reason>).
func exitMessage(pid slp.Pid, reason slp.Obj) slp.Obj {
	return slp.NewList(slp.NewSymbol("exit"), slp.NewPidObj(pid), slp.Copy(reason))
}
