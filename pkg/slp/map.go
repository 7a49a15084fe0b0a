package slp

import (
	"strings"

	"github.com/benbjohnson/immutable"
)

type symbolComparer struct{}

func (symbolComparer) Compare(a, b Symbol) int {
	return strings.Compare(string(a), string(b))
}

// Map is the persistent, symbol keyed map value. Iteration is in key order
// so encoding is deterministic.
type Map struct {
	m *immutable.SortedMap[Symbol, Obj]
}

func NewMap() *Map {
	return &Map{m: immutable.NewSortedMap[Symbol, Obj](symbolComparer{})}
}

func (m *Map) Len() int {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Len()
}

func (m *Map) Get(k Symbol) (Obj, bool) {
	if m == nil || m.m == nil {
		return Obj{}, false
	}
	return m.m.Get(k)
}

// Set returns a new map with k bound to v.
func (m *Map) Set(k Symbol, v Obj) *Map {
	if m == nil || m.m == nil {
		m = NewMap()
	}
	return &Map{m: m.m.Set(k, v)}
}

func (m *Map) Each(fn func(Symbol, Obj) bool) {
	if m == nil || m.m == nil {
		return
	}
	itr := m.m.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		if !fn(k, v) {
			return
		}
	}
}

func (m *Map) Keys() []Symbol {
	keys := make([]Symbol, 0, m.Len())
	m.Each(func(k Symbol, _ Obj) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	same := true
	m.Each(func(k Symbol, v Obj) bool {
		ov, ok := other.Get(k)
		if !ok || !Equal(v, ov) {
			same = false
		}
		return same
	})
	return same
}
