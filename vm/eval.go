package vm

import (
	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/pkg/sys"
)

const evalBudget = 1 << 20

// Eval evaluates expr to completion outside of any process.
func Eval(expr slp.Obj, env *slp.Env, table *sys.Table) (slp.Obj, *slp.Env, error) {
	return EvalProgram([]slp.Obj{expr}, env, table)
}

// EvalProgram evaluates exprs in sequence, threading the environment, and
// returns the last value with the final environment.
func EvalProgram(exprs []slp.Obj, env *slp.Env, table *sys.Table) (slp.Obj, *slp.Env, error) {
	m := New(Config{Table: table})
	m.Load(exprs, env)
	return m.Complete()
}

// Complete runs the machine until it stops. A machine with no host can not
// be woken once blocked.
func (m *Machine) Complete() (slp.Obj, *slp.Env, error) {
	for {
		switch m.Run(evalBudget) {
		case StatusYielded:
			continue
		case StatusDone:
			v, env := m.Result()
			return v, env, nil
		case StatusBlocked:
			return slp.Obj{}, nil, ErrVMBlockedNoHost
		default:
			if f := m.Failure(); f != nil {
				return slp.Obj{}, nil, f
			}
			return slp.Obj{}, nil, ErrVMTerminated
		}
	}
}
