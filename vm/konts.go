package vm

import (
	"github.com/InsulaLabs/isl/pkg/slp"
)

// kont is one pending continuation frame. resume receives the value and
// environment produced by the expression the frame was waiting on.
type kont interface {
	resume(m *Machine, v slp.Obj, env *slp.Env) error
	clone() kont
}

type kIf struct {
	then, els slp.Obj
}

func (k *kIf) resume(m *Machine, v slp.Obj, env *slp.Env) error {
	if v.Truthy() {
		m.eval(k.then, env)
	} else {
		m.eval(k.els, env)
	}
	return nil
}

func (k *kIf) clone() kont { return k }

// kDo evaluates the remaining expressions of a sequence. The environment
// flows through, so a def is seen by later siblings and by the caller.
type kDo struct {
	rest []slp.Obj
}

func (k *kDo) resume(m *Machine, _ slp.Obj, env *slp.Env) error {
	return m.evalSeq(k.rest, env)
}

func (k *kDo) clone() kont { return k }

type kDef struct {
	name slp.Symbol
}

func (k *kDef) resume(m *Machine, v slp.Obj, env *slp.Env) error {
	m.ret(v, env.Bind(k.name, v))
	return nil
}

func (k *kDef) clone() kont { return k }

type binding struct {
	name slp.Symbol
	expr slp.Obj
}

// kLet binds the value of bindings[idx] and moves on to the next binding,
// or to the body once all are bound.
type kLet struct {
	bindings []binding
	idx      int
	body     []slp.Obj
}

func (k *kLet) resume(m *Machine, v slp.Obj, env *slp.Env) error {
	env = env.Bind(k.bindings[k.idx].name, v)
	k.idx++
	if k.idx < len(k.bindings) {
		if err := m.push(k); err != nil {
			return err
		}
		m.eval(k.bindings[k.idx].expr, env)
		return nil
	}
	return m.evalSeq(k.body, env)
}

func (k *kLet) clone() kont {
	c := *k
	return &c
}

// kRestore replaces the environment produced by a scoped evaluation with
// the one that was current before it.
type kRestore struct {
	env *slp.Env
}

func (k *kRestore) resume(m *Machine, v slp.Obj, _ *slp.Env) error {
	m.ret(v, k.env)
	return nil
}

func (k *kRestore) clone() kont { return k }

// kCond holds flat predicate/body pairs; idx is the pair whose predicate
// is being evaluated.
type kCond struct {
	clauses []slp.Obj
	idx     int
}

func (k *kCond) resume(m *Machine, v slp.Obj, env *slp.Env) error {
	if v.Truthy() {
		m.eval(k.clauses[k.idx+1], env)
		return nil
	}
	k.idx += 2
	if k.idx >= len(k.clauses) {
		m.ret(IncompleteCond, env)
		return nil
	}
	if err := m.push(k); err != nil {
		return err
	}
	m.eval(k.clauses[k.idx], env)
	return nil
}

func (k *kCond) clone() kont {
	c := *k
	return &c
}

type argTarget int

const (
	targetList argTarget = iota
	targetSyscall
	targetPrim
	targetApply
)

// kArgs evaluates arguments left to right, threading the environment, then
// dispatches to its target with the collected values.
type kArgs struct {
	target  argTarget
	name    slp.Symbol
	lambda  *slp.Lambda
	pending []slp.Obj
	done    []slp.Obj
}

func (k *kArgs) resume(m *Machine, v slp.Obj, env *slp.Env) error {
	k.done = append(k.done, v)
	if len(k.done) < len(k.pending) {
		if err := m.push(k); err != nil {
			return err
		}
		m.eval(k.pending[len(k.done)], env)
		return nil
	}
	return m.dispatch(k, env)
}

func (k *kArgs) clone() kont {
	c := *k
	c.done = append(make([]slp.Obj, 0, len(k.pending)), k.done...)
	return &c
}

// kCallee receives the evaluated head of an application.
type kCallee struct {
	form slp.List
}

func (k *kCallee) resume(m *Machine, v slp.Obj, env *slp.Env) error {
	lam, ok := v.AsLambda()
	if !ok {
		return slp.Raise(slp.ErrCannotApplyNonFunction, v)
	}
	args := k.form[1:]
	if len(args) != len(lam.Params) {
		return arityMismatch(v, len(lam.Params), len(args))
	}
	return m.evalArgs(&kArgs{target: targetApply, lambda: lam, pending: args}, env)
}

func (k *kCallee) clone() kont { return k }

// kTerminate ends a spawned process once its function returns.
type kTerminate struct{}

func (k *kTerminate) resume(m *Machine, _ slp.Obj, _ *slp.Env) error {
	m.terminate(NormalExit)
	return nil
}

func (k *kTerminate) clone() kont { return k }

func arityMismatch(fn slp.Obj, want, got int) *slp.Error {
	return slp.Raise(slp.ErrArityMismatch, slp.NewList(
		fn,
		slp.NewInt(int64(want)),
		slp.NewInt(int64(got)),
	))
}
