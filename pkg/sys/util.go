package sys

import (
	"fmt"
	"io"
	"sync"

	"github.com/InsulaLabs/isl/pkg/slp"
)

// UtilLib provides type predicates, boolean helpers, output, user errors
// and map values.
type UtilLib struct {
	Out io.Writer

	mu sync.Mutex
}

func (u *UtilLib) Syscalls() []Syscall {
	return []Syscall{
		fixed("list?", 1, is(slp.OBJ_TYPE_LIST)),
		fixed("symbol?", 1, is(slp.OBJ_TYPE_SYMBOL)),
		fixed("int?", 1, is(slp.OBJ_TYPE_INT)),
		fixed("string?", 1, is(slp.OBJ_TYPE_STRING)),
		fixed("pid?", 1, is(slp.OBJ_TYPE_PID)),
		fixed("bool?", 1, is(slp.OBJ_TYPE_BOOL)),
		fixed("print", 1, u.print),
		variadic("or", 0, or),
		variadic("and", 0, and),
		fixed("not", 1, not),
		fixed("error", 1, raise),
		variadic("map", 0, makeMap),
		fixed("get", 2, get),
		fixed("assoc", 3, assoc),
		fixed("keys", 1, keys),
	}
}

func is(t slp.ObjType) Fn {
	return func(args []slp.Obj) (slp.Obj, error) {
		return slp.NewBool(args[0].Type == t), nil
	}
}

// print writes the value followed by a newline and returns it. Workers
// print concurrently, so writes are serialized per library instance.
func (u *UtilLib) print(args []slp.Obj) (slp.Obj, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, err := fmt.Fprintln(u.Out, args[0].Display()); err != nil {
		return slp.Obj{}, fmt.Errorf("print: %w", err)
	}
	return args[0], nil
}

// or returns the first truthy argument, or #f.
func or(args []slp.Obj) (slp.Obj, error) {
	for _, a := range args {
		if a.Truthy() {
			return a, nil
		}
	}
	return slp.False, nil
}

// and returns the last argument when all are truthy, or #f.
func and(args []slp.Obj) (slp.Obj, error) {
	res := slp.True
	for _, a := range args {
		if !a.Truthy() {
			return slp.False, nil
		}
		res = a
	}
	return res, nil
}

func not(args []slp.Obj) (slp.Obj, error) {
	return slp.NewBool(!args[0].Truthy()), nil
}

func raise(args []slp.Obj) (slp.Obj, error) {
	return slp.Obj{}, slp.Raise(slp.ErrUserError, args[0])
}

func symbolArg(name string, o slp.Obj) (slp.Symbol, error) {
	s, ok := o.AsSymbol()
	if !ok {
		return "", errArgType(name, slp.OBJ_TYPE_SYMBOL, o)
	}
	return s, nil
}

func mapArg(name string, o slp.Obj) (*slp.Map, error) {
	m, ok := o.AsMap()
	if !ok {
		return nil, errArgType(name, slp.OBJ_TYPE_MAP, o)
	}
	return m, nil
}

// makeMap builds a map from alternating keys and values.
func makeMap(args []slp.Obj) (slp.Obj, error) {
	if len(args)%2 != 0 {
		return slp.Obj{}, fmt.Errorf("map: odd number of arguments (%d)", len(args))
	}
	m := slp.NewMap()
	for i := 0; i < len(args); i += 2 {
		k, err := symbolArg("map", args[i])
		if err != nil {
			return slp.Obj{}, err
		}
		m = m.Set(k, args[i+1])
	}
	return slp.NewMapObj(m), nil
}

// get returns the empty list for a missing key.
func get(args []slp.Obj) (slp.Obj, error) {
	m, err := mapArg("get", args[0])
	if err != nil {
		return slp.Obj{}, err
	}
	k, err := symbolArg("get", args[1])
	if err != nil {
		return slp.Obj{}, err
	}
	if v, ok := m.Get(k); ok {
		return v, nil
	}
	return slp.Empty, nil
}

func assoc(args []slp.Obj) (slp.Obj, error) {
	m, err := mapArg("assoc", args[0])
	if err != nil {
		return slp.Obj{}, err
	}
	k, err := symbolArg("assoc", args[1])
	if err != nil {
		return slp.Obj{}, err
	}
	return slp.NewMapObj(m.Set(k, args[2])), nil
}

func keys(args []slp.Obj) (slp.Obj, error) {
	m, err := mapArg("keys", args[0])
	if err != nil {
		return slp.Obj{}, err
	}
	ks := m.Keys()
	out := make(slp.List, len(ks))
	for i, k := range ks {
		out[i] = slp.NewSymbol(string(k))
	}
	return slp.NewList(out...), nil
}
