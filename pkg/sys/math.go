package sys

import (
	"github.com/InsulaLabs/isl/pkg/slp"
)

// MathLib provides integer arithmetic and comparison. Arithmetic wraps on
// overflow like Go's int64.
type MathLib struct{}

func (MathLib) Syscalls() []Syscall {
	return []Syscall{
		variadic("+", 0, fold("+", 0, func(a, b slp.Int) slp.Int { return a + b })),
		variadic("*", 0, fold("*", 1, func(a, b slp.Int) slp.Int { return a * b })),
		variadic("-", 1, sub),
		fixed("<", 2, compare("<", func(a, b slp.Int) bool { return a < b })),
		fixed(">", 2, compare(">", func(a, b slp.Int) bool { return a > b })),
		fixed("=", 2, equal),
		fixed("even?", 1, parity("even?", 0)),
		fixed("odd?", 1, parity("odd?", 1)),
	}
}

func ints(name string, args []slp.Obj) ([]slp.Int, error) {
	out := make([]slp.Int, len(args))
	for i, a := range args {
		n, ok := a.AsInt()
		if !ok {
			return nil, errArgType(name, slp.OBJ_TYPE_INT, a)
		}
		out[i] = n
	}
	return out, nil
}

func fold(name string, unit slp.Int, op func(a, b slp.Int) slp.Int) Fn {
	return func(args []slp.Obj) (slp.Obj, error) {
		ns, err := ints(name, args)
		if err != nil {
			return slp.Obj{}, err
		}
		acc := unit
		for _, n := range ns {
			acc = op(acc, n)
		}
		return slp.NewInt(int64(acc)), nil
	}
}

// sub negates a single argument and otherwise subtracts the rest from the
// first.
func sub(args []slp.Obj) (slp.Obj, error) {
	ns, err := ints("-", args)
	if err != nil {
		return slp.Obj{}, err
	}
	if len(ns) == 1 {
		return slp.NewInt(int64(-ns[0])), nil
	}
	acc := ns[0]
	for _, n := range ns[1:] {
		acc -= n
	}
	return slp.NewInt(int64(acc)), nil
}

func compare(name string, op func(a, b slp.Int) bool) Fn {
	return func(args []slp.Obj) (slp.Obj, error) {
		ns, err := ints(name, args)
		if err != nil {
			return slp.Obj{}, err
		}
		return slp.NewBool(op(ns[0], ns[1])), nil
	}
}

// equal is structural and accepts any two values.
func equal(args []slp.Obj) (slp.Obj, error) {
	return slp.NewBool(slp.Equal(args[0], args[1])), nil
}

func parity(name string, rem slp.Int) Fn {
	return func(args []slp.Obj) (slp.Obj, error) {
		ns, err := ints(name, args)
		if err != nil {
			return slp.Obj{}, err
		}
		r := ns[0] % 2
		if r < 0 {
			r = -r
		}
		return slp.NewBool(r == rem), nil
	}
}
