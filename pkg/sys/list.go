package sys

import (
	"fmt"

	"github.com/InsulaLabs/isl/pkg/slp"
)

func fixed(name string, arity int, fn Fn) Syscall {
	return Syscall{Name: slp.Symbol(name), Arity: arity, Fn: fn, Cost: 1}
}

func variadic(name string, min int, fn Fn) Syscall {
	return Syscall{Name: slp.Symbol(name), Arity: min, Variadic: true, Fn: fn, Cost: 1}
}

func listArg(name string, o slp.Obj) (slp.List, error) {
	l, ok := o.AsList()
	if !ok {
		return nil, errArgType(name, slp.OBJ_TYPE_LIST, o)
	}
	return l, nil
}

// ListLib provides the list primitives.
type ListLib struct{}

func (ListLib) Syscalls() []Syscall {
	return []Syscall{
		fixed("len", 1, length),
		fixed("size", 1, length),
		fixed("cons", 2, cons),
		fixed("car", 1, car("car")),
		fixed("first", 1, car("first")),
		fixed("cdr", 1, cdr("cdr")),
		fixed("rest", 1, cdr("rest")),
		fixed("empty?", 1, isEmpty),
		fixed("nth", 2, nth),
		variadic("append", 0, appendLists),
	}
}

// length counts list items, string bytes or map entries.
func length(args []slp.Obj) (slp.Obj, error) {
	switch args[0].Type {
	case slp.OBJ_TYPE_LIST:
		l, _ := args[0].AsList()
		return slp.NewInt(int64(len(l))), nil
	case slp.OBJ_TYPE_STRING:
		s, _ := args[0].AsString()
		return slp.NewInt(int64(len(s))), nil
	case slp.OBJ_TYPE_MAP:
		m, _ := args[0].AsMap()
		return slp.NewInt(int64(m.Len())), nil
	}
	return slp.Obj{}, errArgType("len", slp.OBJ_TYPE_LIST, args[0])
}

func cons(args []slp.Obj) (slp.Obj, error) {
	tail, err := listArg("cons", args[1])
	if err != nil {
		return slp.Obj{}, err
	}
	out := make(slp.List, 0, len(tail)+1)
	out = append(out, args[0])
	out = append(out, tail...)
	return slp.NewList(out...), nil
}

func car(name string) Fn {
	return func(args []slp.Obj) (slp.Obj, error) {
		l, err := listArg(name, args[0])
		if err != nil {
			return slp.Obj{}, err
		}
		if len(l) == 0 {
			return slp.Obj{}, fmt.Errorf("%s: empty list", name)
		}
		return l[0], nil
	}
}

// cdr of the empty list is the empty list.
func cdr(name string) Fn {
	return func(args []slp.Obj) (slp.Obj, error) {
		l, err := listArg(name, args[0])
		if err != nil {
			return slp.Obj{}, err
		}
		if len(l) == 0 {
			return slp.Empty, nil
		}
		return slp.NewList(l[1:]...), nil
	}
}

func isEmpty(args []slp.Obj) (slp.Obj, error) {
	l, err := listArg("empty?", args[0])
	if err != nil {
		return slp.Obj{}, err
	}
	return slp.NewBool(len(l) == 0), nil
}

func nth(args []slp.Obj) (slp.Obj, error) {
	l, err := listArg("nth", args[0])
	if err != nil {
		return slp.Obj{}, err
	}
	idx, ok := args[1].AsInt()
	if !ok {
		return slp.Obj{}, errArgType("nth", slp.OBJ_TYPE_INT, args[1])
	}
	if idx < 0 || int(idx) >= len(l) {
		return slp.Obj{}, fmt.Errorf("nth: index %d out of range [0,%d)", idx, len(l))
	}
	return l[idx], nil
}

func appendLists(args []slp.Obj) (slp.Obj, error) {
	out := slp.List{}
	for _, a := range args {
		l, err := listArg("append", a)
		if err != nil {
			return slp.Obj{}, err
		}
		out = append(out, l...)
	}
	return slp.NewList(out...), nil
}
