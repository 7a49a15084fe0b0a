package slp

import (
	"hash/fnv"
	"sort"

	"github.com/benbjohnson/immutable"
)

type symbolHasher struct{}

func (symbolHasher) Hash(k Symbol) uint32 {
	h := fnv.New32a()
	h.Write([]byte(k))
	return h.Sum32()
}

func (symbolHasher) Equal(a, b Symbol) bool {
	return a == b
}

// Env is a persistent symbol table. Every update returns a new Env and leaves
// the receiver untouched, so environments may be shared freely between
// closures, forked machines and processes.
type Env struct {
	m *immutable.Map[Symbol, Obj]
}

func NewEnv() *Env {
	return &Env{m: immutable.NewMap[Symbol, Obj](symbolHasher{})}
}

// EnvFrom builds an environment holding every binding in bindings.
func EnvFrom(bindings map[Symbol]Obj) *Env {
	b := immutable.NewMapBuilder[Symbol, Obj](symbolHasher{})
	for k, v := range bindings {
		b.Set(k, v)
	}
	return &Env{m: b.Map()}
}

func (e *Env) Len() int {
	if e == nil || e.m == nil {
		return 0
	}
	return e.m.Len()
}

func (e *Env) Get(name Symbol) (Obj, bool) {
	if e == nil || e.m == nil {
		return Obj{}, false
	}
	return e.m.Get(name)
}

// Lookup is Get reporting a missing binding as UnboundVariable.
func (e *Env) Lookup(name Symbol) (Obj, error) {
	v, ok := e.Get(name)
	if !ok {
		return Obj{}, Raise(ErrUnboundVariable, NewSymbol(string(name)))
	}
	return v, nil
}

// Bind returns a new environment with name set to value.
func (e *Env) Bind(name Symbol, value Obj) *Env {
	if e == nil || e.m == nil {
		e = NewEnv()
	}
	return &Env{m: e.m.Set(name, value)}
}

// Merge returns base overlaid with overlay. Bindings in overlay win.
func Merge(base, overlay *Env) *Env {
	if overlay.Len() == 0 {
		if base == nil {
			return NewEnv()
		}
		return base
	}
	if base.Len() == 0 {
		return overlay
	}
	if overlay.Len() <= base.Len() {
		out := base.m
		itr := overlay.m.Iterator()
		for !itr.Done() {
			k, v, _ := itr.Next()
			out = out.Set(k, v)
		}
		return &Env{m: out}
	}
	// Fewer keys in base: copy only the ones overlay does not shadow.
	out := overlay.m
	itr := base.m.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		if _, shadowed := out.Get(k); !shadowed {
			out = out.Set(k, v)
		}
	}
	return &Env{m: out}
}

// Each calls fn for every binding in unspecified order until fn returns
// false.
func (e *Env) Each(fn func(Symbol, Obj) bool) {
	if e == nil || e.m == nil {
		return
	}
	itr := e.m.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		if !fn(k, v) {
			return
		}
	}
}

// Keys returns the bound names in sorted order.
func (e *Env) Keys() []Symbol {
	keys := make([]Symbol, 0, e.Len())
	e.Each(func(k Symbol, _ Obj) bool {
		keys = append(keys, k)
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
