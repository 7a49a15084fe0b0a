/*
Package sys holds the host syscall table: native primitives that evaluated
code calls by name. A syscall is registered with a fixed arity, or as
variadic with a minimum argument count, and lookup checks both.
*/
package sys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/InsulaLabs/isl/pkg/slp"
)

// Fn receives arguments that are already evaluated.
type Fn func(args []slp.Obj) (slp.Obj, error)

type Syscall struct {
	Name     slp.Symbol
	Arity    int  // exact count, or the minimum when Variadic
	Variadic bool
	Fn       Fn

	// Cost is charged in reductions on top of the dispatch step.
	Cost int
}

// Factory groups related syscalls so a library can be registered at once.
type Factory interface {
	Syscalls() []Syscall
}

type Table struct {
	calls map[slp.Symbol]Syscall
}

func NewTable() *Table {
	return &Table{calls: make(map[slp.Symbol]Syscall)}
}

// WithSyscall registers a single syscall, replacing any previous one with
// the same name.
func (t *Table) WithSyscall(sc Syscall) *Table {
	if sc.Cost < 0 {
		sc.Cost = 0
	}
	t.calls[sc.Name] = sc
	return t
}

func (t *Table) WithFactory(f Factory) *Table {
	for _, sc := range f.Syscalls() {
		t.WithSyscall(sc)
	}
	return t
}

// Has reports whether name is registered at any arity.
func (t *Table) Has(name slp.Symbol) bool {
	if t == nil {
		return false
	}
	_, ok := t.calls[name]
	return ok
}

// Lookup finds the syscall for name called with argc arguments.
func (t *Table) Lookup(name slp.Symbol, argc int) (Syscall, error) {
	if t == nil {
		return Syscall{}, notFound(name, argc)
	}
	sc, ok := t.calls[name]
	if !ok {
		return Syscall{}, notFound(name, argc)
	}
	if sc.Variadic && argc < sc.Arity {
		return Syscall{}, notFound(name, argc)
	}
	if !sc.Variadic && argc != sc.Arity {
		return Syscall{}, notFound(name, argc)
	}
	return sc, nil
}

// Invoke looks up and calls name. Errors that are not already language
// errors are reported as SyscallFailed.
func (t *Table) Invoke(name slp.Symbol, args []slp.Obj) (slp.Obj, error) {
	sc, err := t.Lookup(name, len(args))
	if err != nil {
		return slp.Obj{}, err
	}
	return sc.Call(args)
}

func (sc Syscall) Call(args []slp.Obj) (slp.Obj, error) {
	res, err := sc.Fn(args)
	if err == nil {
		return res, nil
	}
	var lerr *slp.Error
	if errors.As(err, &lerr) {
		return slp.Obj{}, lerr
	}
	return slp.Obj{}, slp.Raise(slp.ErrSyscallFailed, slp.NewList(
		slp.NewSymbol(string(sc.Name)),
		slp.NewString(err.Error()),
	))
}

func (t *Table) Names() []slp.Symbol {
	names := make([]slp.Symbol, 0, len(t.calls))
	for n := range t.calls {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Default returns a table with the list, math and util libraries. print
// writes to out, or stdout when out is nil.
func Default(out io.Writer) *Table {
	if out == nil {
		out = os.Stdout
	}
	return NewTable().
		WithFactory(ListLib{}).
		WithFactory(MathLib{}).
		WithFactory(&UtilLib{Out: out})
}

func notFound(name slp.Symbol, argc int) *slp.Error {
	return slp.Raise(slp.ErrSyscallNotFound, slp.NewList(
		slp.NewSymbol(string(name)),
		slp.NewInt(int64(argc)),
	))
}

func errArgType(name string, want slp.ObjType, got slp.Obj) error {
	return fmt.Errorf("%s: expected %s, got %s", name, want, got.Encode())
}
