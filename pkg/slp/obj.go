package slp

import (
	"strings"

	"github.com/google/uuid"
)

type ObjType string

const (
	OBJ_TYPE_INT    ObjType = "int"
	OBJ_TYPE_BOOL   ObjType = "bool"
	OBJ_TYPE_SYMBOL ObjType = "symbol" // unquoted identifier
	OBJ_TYPE_STRING ObjType = "string" // quoted string
	OBJ_TYPE_LIST   ObjType = "list"
	OBJ_TYPE_MAP    ObjType = "map" // symbol keyed, keys unique
	OBJ_TYPE_LAMBDA ObjType = "lambda"
	OBJ_TYPE_PID    ObjType = "pid"
	OBJ_TYPE_ERROR  ObjType = "error"
)

type Int int64
type Bool bool
type Symbol string
type List []Obj

// Pid identifies a process for the lifetime of a runtime instance.
type Pid uuid.UUID

var NilPid = Pid(uuid.Nil)

func NewPid() Pid {
	return Pid(uuid.New())
}

func ParsePid(s string) (Pid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilPid, err
	}
	return Pid(id), nil
}

func (p Pid) String() string {
	return uuid.UUID(p).String()
}

// Lambda is a closure. Env is captured at creation and never mutated; calls
// bind parameters in a derived environment.
type Lambda struct {
	Params []Symbol
	Body   Obj
	Env    *Env
}

type Obj struct {
	Type ObjType
	D    any
}

func NewInt(n int64) Obj {
	return Obj{Type: OBJ_TYPE_INT, D: Int(n)}
}

func NewBool(b bool) Obj {
	return Obj{Type: OBJ_TYPE_BOOL, D: Bool(b)}
}

func NewSymbol(s string) Obj {
	return Obj{Type: OBJ_TYPE_SYMBOL, D: Symbol(s)}
}

func NewString(s string) Obj {
	return Obj{Type: OBJ_TYPE_STRING, D: s}
}

func NewList(items ...Obj) Obj {
	if items == nil {
		items = List{}
	}
	return Obj{Type: OBJ_TYPE_LIST, D: List(items)}
}

func NewPidObj(p Pid) Obj {
	return Obj{Type: OBJ_TYPE_PID, D: p}
}

func NewLambda(params []Symbol, body Obj, env *Env) Obj {
	return Obj{Type: OBJ_TYPE_LAMBDA, D: &Lambda{Params: params, Body: body, Env: env}}
}

func NewMapObj(m *Map) Obj {
	if m == nil {
		m = NewMap()
	}
	return Obj{Type: OBJ_TYPE_MAP, D: m}
}

var (
	True  = NewBool(true)
	False = NewBool(false)
	Empty = NewList()
)

func (o Obj) AsInt() (Int, bool) {
	v, ok := o.D.(Int)
	return v, ok && o.Type == OBJ_TYPE_INT
}

func (o Obj) AsSymbol() (Symbol, bool) {
	v, ok := o.D.(Symbol)
	return v, ok && o.Type == OBJ_TYPE_SYMBOL
}

func (o Obj) AsString() (string, bool) {
	v, ok := o.D.(string)
	return v, ok && o.Type == OBJ_TYPE_STRING
}

func (o Obj) AsList() (List, bool) {
	v, ok := o.D.(List)
	return v, ok && o.Type == OBJ_TYPE_LIST
}

func (o Obj) AsMap() (*Map, bool) {
	v, ok := o.D.(*Map)
	return v, ok && o.Type == OBJ_TYPE_MAP
}

func (o Obj) AsLambda() (*Lambda, bool) {
	v, ok := o.D.(*Lambda)
	return v, ok && o.Type == OBJ_TYPE_LAMBDA
}

func (o Obj) AsPid() (Pid, bool) {
	v, ok := o.D.(Pid)
	return v, ok && o.Type == OBJ_TYPE_PID
}

func (o Obj) AsError() (*Error, bool) {
	v, ok := o.D.(*Error)
	return v, ok && o.Type == OBJ_TYPE_ERROR
}

// Truthy reports whether o counts as true in a conditional. Only the
// boolean false is falsy.
func (o Obj) Truthy() bool {
	if o.Type != OBJ_TYPE_BOOL {
		return true
	}
	b, _ := o.D.(Bool)
	return bool(b)
}

// IsSymbol reports whether o is the symbol name.
func (o Obj) IsSymbol(name string) bool {
	s, ok := o.AsSymbol()
	return ok && string(s) == name
}

// Equal compares values structurally. Lambdas compare by identity.
func Equal(a, b Obj) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case OBJ_TYPE_LIST:
		la, _ := a.AsList()
		lb, _ := b.AsList()
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	case OBJ_TYPE_MAP:
		ma, _ := a.AsMap()
		mb, _ := b.AsMap()
		return ma.Equal(mb)
	case OBJ_TYPE_LAMBDA:
		return a.D.(*Lambda) == b.D.(*Lambda)
	case OBJ_TYPE_ERROR:
		ea, _ := a.AsError()
		eb, _ := b.AsError()
		return ea.Kind == eb.Kind && Equal(ea.Payload, eb.Payload)
	default:
		return a.D == b.D
	}
}

// Copy returns a value that shares no mutable structure with o. Lists are
// duplicated; maps, environments and lambdas are persistent and shared.
func Copy(o Obj) Obj {
	switch o.Type {
	case OBJ_TYPE_LIST:
		src, _ := o.AsList()
		dst := make(List, len(src))
		for i := range src {
			dst[i] = Copy(src[i])
		}
		return Obj{Type: OBJ_TYPE_LIST, D: dst}
	case OBJ_TYPE_ERROR:
		e, _ := o.AsError()
		return NewError(e.Kind, Copy(e.Payload))
	default:
		return o
	}
}

// Encode renders o as s-expression text. Strings are quoted.
func (o Obj) Encode() string {
	var sb strings.Builder
	encode(&sb, o, true)
	return sb.String()
}

// Display renders o like Encode but leaves top level strings unquoted.
func (o Obj) Display() string {
	if s, ok := o.AsString(); ok {
		return s
	}
	return o.Encode()
}

func (o Obj) String() string {
	return o.Encode()
}
