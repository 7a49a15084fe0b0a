package vm

import (
	"github.com/InsulaLabs/isl/pkg/slp"
)

// Host connects a machine to the process that runs it. The scheduler
// implements it once per process.
type Host interface {
	Self() slp.Pid

	// Send delivers msg as is; callers copy it first.
	Send(to slp.Pid, msg slp.Obj) error

	// Receive dequeues the next message without blocking.
	Receive() (slp.Obj, bool)

	// Fork registers child as a new runnable process.
	Fork(child *Machine) (slp.Pid, error)

	Watch(target slp.Pid) error
}

type primitive struct {
	arity int
	fn    func(m *Machine, args []slp.Obj, env *slp.Env) error
}

var primitives map[slp.Symbol]primitive

func init() {
	primitives = map[slp.Symbol]primitive{
		"pid":       {arity: 0, fn: primPid},
		"fork":      {arity: 0, fn: primFork},
		"spawn":     {arity: 1, fn: primSpawn},
		"send":      {arity: 2, fn: primSend},
		"wait":      {arity: 0, fn: primWait},
		"watch":     {arity: 1, fn: primWatch},
		"terminate": {arity: 1, fn: primTerminate},
	}
}

func IsPrimitive(name slp.Symbol) bool {
	_, ok := primitives[name]
	return ok
}

func (m *Machine) requireHost(name string) (Host, error) {
	if m.host == nil {
		return nil, slp.Raise(slp.ErrNotInProcess, slp.NewSymbol(name))
	}
	return m.host, nil
}

func pidArg(o slp.Obj) (slp.Pid, error) {
	p, ok := o.AsPid()
	if !ok {
		return slp.NilPid, slp.TypeMismatch(slp.OBJ_TYPE_PID, o)
	}
	return p, nil
}

func primPid(m *Machine, _ []slp.Obj, env *slp.Env) error {
	h, err := m.requireHost("pid")
	if err != nil {
		return err
	}
	m.ret(slp.NewPidObj(h.Self()), env)
	return nil
}

// fork yields #t in the new process and #f in the caller. Both continue
// from the same environment.
func primFork(m *Machine, _ []slp.Obj, env *slp.Env) error {
	h, err := m.requireHost("fork")
	if err != nil {
		return err
	}
	child := m.Clone()
	child.host = nil
	child.ret(slp.True, env)
	pid, err := h.Fork(child)
	if err != nil {
		return err
	}
	m.logger.Debug("fork", "parent", h.Self(), "child", pid)
	m.ret(slp.False, env)
	return nil
}

// spawn starts f with no arguments in a new process that terminates with
// NormalExit when f returns, and yields the new pid.
func primSpawn(m *Machine, args []slp.Obj, env *slp.Env) error {
	h, err := m.requireHost("spawn")
	if err != nil {
		return err
	}
	lam, ok := args[0].AsLambda()
	if !ok {
		return slp.Raise(slp.ErrCannotApplyNonFunction, args[0])
	}
	if len(lam.Params) != 0 {
		return arityMismatch(args[0], len(lam.Params), 0)
	}

	child := New(Config{
		Table:     m.table,
		Logger:    m.logger,
		MaxFrames: m.maxFrames,
	})
	child.env = env
	child.konts = append(child.konts, &kTerminate{})
	if err := child.apply(lam, nil, env); err != nil {
		return err
	}

	pid, err := h.Fork(child)
	if err != nil {
		return err
	}
	m.logger.Debug("spawn", "parent", h.Self(), "child", pid)
	m.ret(slp.NewPidObj(pid), env)
	return nil
}

// (send pid msg) yields pid. The message is deep copied so sender and
// receiver never share list structure.
func primSend(m *Machine, args []slp.Obj, env *slp.Env) error {
	h, err := m.requireHost("send")
	if err != nil {
		return err
	}
	to, err := pidArg(args[0])
	if err != nil {
		return err
	}
	if err := h.Send(to, slp.Copy(args[1])); err != nil {
		return err
	}
	m.ret(args[0], env)
	return nil
}

func primWait(m *Machine, _ []slp.Obj, env *slp.Env) error {
	h, err := m.requireHost("wait")
	if err != nil {
		return err
	}
	if msg, ok := h.Receive(); ok {
		m.ret(msg, env)
		return nil
	}
	m.env = env
	m.mode = VMModeWaiting
	return nil
}

func primWatch(m *Machine, args []slp.Obj, env *slp.Env) error {
	h, err := m.requireHost("watch")
	if err != nil {
		return err
	}
	target, err := pidArg(args[0])
	if err != nil {
		return err
	}
	if err := h.Watch(target); err != nil {
		return err
	}
	m.ret(args[0], env)
	return nil
}

func primTerminate(m *Machine, args []slp.Obj, _ *slp.Env) error {
	if _, err := m.requireHost("terminate"); err != nil {
		return err
	}
	m.terminate(args[0])
	return nil
}
