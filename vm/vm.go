/*
Package vm is the step-bounded evaluator. A Machine holds its whole
evaluation state as data (current expression, environment, and an explicit
continuation stack) so it can be paused after any number of reductions,
parked while it waits for a message, and cloned for fork.
*/
package vm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/pkg/sys"
)

type VMError struct {
	Message string
	Code    int
}

func (e *VMError) Error() string {
	return fmt.Sprintf("VM error: %s (code: %d)", e.Message, e.Code)
}

var (
	ErrVMNotLoaded     = &VMError{Message: "VM has no program loaded", Code: 1}
	ErrVMNotWaiting    = &VMError{Message: "VM resumed while not waiting", Code: 2}
	ErrVMBlockedNoHost = &VMError{Message: "VM blocked without a process host", Code: 3}
	ErrVMTerminated    = &VMError{Message: "VM terminated", Code: 4}
)

const DefaultMaxFrames = 100000

type Config struct {
	Table  *sys.Table
	Host   Host // nil outside of a scheduler; process primitives then fail
	Logger *slog.Logger

	// MaxFrames bounds the continuation stack.
	MaxFrames int
}

type Status int

const (
	StatusYielded Status = iota // budget used up, still runnable
	StatusBlocked               // waiting for a message
	StatusDone                  // ran out of work
	StatusTerminated            // terminate or an escaped error
)

func (s Status) String() string {
	switch s {
	case StatusYielded:
		return "yielded"
	case StatusBlocked:
		return "blocked"
	case StatusDone:
		return "done"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type VMMode string

const (
	VMModeNone       VMMode = "none"
	VMModeEval       VMMode = "eval"
	VMModeReturn     VMMode = "return"
	VMModeWaiting    VMMode = "waiting"
	VMModeDone       VMMode = "done"
	VMModeTerminated VMMode = "terminated"
)

type Machine struct {
	table     *sys.Table
	host      Host
	logger    *slog.Logger
	maxFrames int

	mode  VMMode
	expr  slp.Obj
	env   *slp.Env
	val   slp.Obj
	konts []kont

	// charge is extra reductions owed by the last dispatch.
	charge int

	reason     slp.Obj
	failure    *slp.Error
	reductions uint64
}

func New(config Config) *Machine {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxFrames <= 0 {
		config.MaxFrames = DefaultMaxFrames
	}
	if config.Table == nil {
		config.Table = sys.NewTable()
	}
	return &Machine{
		table:     config.Table,
		host:      config.Host,
		logger:    config.Logger,
		maxFrames: config.MaxFrames,
		mode:      VMModeNone,
		env:       slp.NewEnv(),
	}
}

// SetHost attaches the process host. The scheduler calls it before the
// machine first runs.
func (m *Machine) SetHost(h Host) {
	m.host = h
}

// Load resets the machine to evaluate exprs in sequence, as if wrapped in a
// do, starting from env. An empty program finishes with the empty list.
func (m *Machine) Load(exprs []slp.Obj, env *slp.Env) {
	if env == nil {
		env = slp.NewEnv()
	}
	m.konts = m.konts[:0]
	m.env = env
	m.reason = slp.Obj{}
	m.failure = nil
	if len(exprs) == 0 {
		m.val = slp.Empty
		m.mode = VMModeReturn
		return
	}
	m.mode = VMModeEval
	if err := m.evalSeq(exprs, env); err != nil {
		m.fail(err)
	}
}

func (m *Machine) Reductions() uint64 {
	return m.reductions
}

// Run advances the machine by at most budget reductions.
func (m *Machine) Run(budget int) Status {
	for {
		switch m.mode {
		case VMModeNone:
			m.fail(ErrVMNotLoaded)
			return StatusTerminated
		case VMModeWaiting:
			return StatusBlocked
		case VMModeDone:
			return StatusDone
		case VMModeTerminated:
			return StatusTerminated
		}

		if budget <= 0 {
			return StatusYielded
		}

		var err error
		if m.mode == VMModeEval {
			err = m.step()
		} else {
			if len(m.konts) == 0 {
				m.mode = VMModeDone
				return StatusDone
			}
			k := m.pop()
			err = k.resume(m, m.val, m.env)
		}
		m.reductions++
		budget--
		if m.charge > 0 {
			m.reductions += uint64(m.charge)
			budget -= m.charge
			m.charge = 0
		}
		if err != nil {
			m.fail(err)
		}
	}
}

// Resume hands msg to a machine parked in wait.
func (m *Machine) Resume(msg slp.Obj) error {
	if m.mode != VMModeWaiting {
		return ErrVMNotWaiting
	}
	m.val = msg
	m.mode = VMModeReturn
	return nil
}

// Result is the final value and environment of a finished machine.
func (m *Machine) Result() (slp.Obj, *slp.Env) {
	return m.val, m.env
}

// Reason is why the machine terminated: the terminate argument, or the
// escaped error as an error value.
func (m *Machine) Reason() slp.Obj {
	return m.reason
}

// Failure is the escaped error, if termination came from one.
func (m *Machine) Failure() *slp.Error {
	return m.failure
}

// Clone returns an independent copy sharing only persistent structure.
func (m *Machine) Clone() *Machine {
	c := *m
	c.konts = make([]kont, len(m.konts), cap(m.konts))
	for i, k := range m.konts {
		c.konts[i] = k.clone()
	}
	return &c
}

func (m *Machine) fail(err error) {
	var lerr *slp.Error
	if !errors.As(err, &lerr) {
		lerr = slp.Raise(slp.ErrUnknownErrKind, slp.NewString(err.Error()))
	}
	m.failure = lerr
	m.terminate(lerr.Obj())
}

func (m *Machine) terminate(reason slp.Obj) {
	m.reason = reason
	m.mode = VMModeTerminated
	m.konts = nil
}

func (m *Machine) ret(v slp.Obj, env *slp.Env) {
	m.val = v
	m.env = env
	m.mode = VMModeReturn
}

func (m *Machine) eval(expr slp.Obj, env *slp.Env) {
	m.expr = expr
	m.env = env
	m.mode = VMModeEval
}

func (m *Machine) push(k kont) error {
	if len(m.konts) >= m.maxFrames {
		return slp.Raise(slp.ErrStackOverflow, slp.NewInt(int64(m.maxFrames)))
	}
	m.konts = append(m.konts, k)
	return nil
}

func (m *Machine) pop() kont {
	k := m.konts[len(m.konts)-1]
	m.konts[len(m.konts)-1] = nil
	m.konts = m.konts[:len(m.konts)-1]
	return k
}

// pushRestore arranges for env to be current again once the callee
// returns. A restore directly underneath makes this one redundant, which
// keeps tail calls from growing the stack.
func (m *Machine) pushRestore(env *slp.Env) error {
	if n := len(m.konts); n > 0 {
		if _, ok := m.konts[n-1].(*kRestore); ok {
			return nil
		}
	}
	return m.push(&kRestore{env: env})
}
