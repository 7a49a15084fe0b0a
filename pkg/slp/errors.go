package slp

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrUnboundVariable        ErrorKind = "UnboundVariable"
	ErrSyscallNotFound        ErrorKind = "SyscallNotFound"
	ErrArityMismatch          ErrorKind = "ArityMismatch"
	ErrCannotApplyNonFunction ErrorKind = "CannotApplyNonFunction"
	ErrUnevenBindings         ErrorKind = "UnevenBindings"
	ErrNonSymbolBindingName   ErrorKind = "NonSymbolBindingName"
	ErrUnknownProcess         ErrorKind = "UnknownProcess"

	ErrMalformedForm  ErrorKind = "MalformedForm"
	ErrTypeMismatch   ErrorKind = "TypeMismatch"
	ErrSyscallFailed  ErrorKind = "SyscallFailed"
	ErrUserError      ErrorKind = "UserError"
	ErrStackOverflow  ErrorKind = "StackOverflow"
	ErrNotInProcess   ErrorKind = "NotInProcess"
	ErrUnknownErrKind ErrorKind = "Unknown"
)

func errorKindDescription(kind ErrorKind) string {
	switch kind {
	case ErrUnboundVariable:
		return "symbol is not bound in the environment"
	case ErrSyscallNotFound:
		return "no syscall registered under that name and arity"
	case ErrArityMismatch:
		return "wrong number of arguments"
	case ErrCannotApplyNonFunction:
		return "head of application is not a function"
	case ErrUnevenBindings:
		return "binding list is not made of name/value pairs"
	case ErrNonSymbolBindingName:
		return "binding name must be a symbol"
	case ErrUnknownProcess:
		return "no process was ever registered under that pid"
	case ErrMalformedForm:
		return "special form has the wrong shape"
	case ErrTypeMismatch:
		return "value has the wrong type"
	case ErrSyscallFailed:
		return "syscall rejected its arguments"
	case ErrUserError:
		return "raised by program"
	case ErrStackOverflow:
		return "continuation stack exceeded its bound"
	case ErrNotInProcess:
		return "process primitive used outside of a process"
	default:
		return fmt.Sprintf("unknown error kind (%s)", string(kind))
	}
}

// Error is a language level error. It travels as an ordinary value (see
// NewError) and also satisfies the error interface for host callers.
type Error struct {
	Kind    ErrorKind
	Payload Obj
}

func (e *Error) Error() string {
	sb := strings.Builder{}
	sb.WriteString(string(e.Kind))
	sb.WriteString(" (")
	sb.WriteString(errorKindDescription(e.Kind))
	sb.WriteString("): ")
	sb.WriteString(e.Payload.Encode())
	return sb.String()
}

func Raise(kind ErrorKind, payload Obj) *Error {
	if payload.Type == "" {
		payload = Empty
	}
	return &Error{Kind: kind, Payload: payload}
}

func NewError(kind ErrorKind, payload Obj) Obj {
	return Obj{Type: OBJ_TYPE_ERROR, D: Raise(kind, payload)}
}

// Obj wraps the error as a runtime value.
func (e *Error) Obj() Obj {
	return Obj{Type: OBJ_TYPE_ERROR, D: e}
}

// TypeMismatch reports that got was not of the wanted type.
func TypeMismatch(want ObjType, got Obj) *Error {
	return Raise(ErrTypeMismatch, NewList(NewSymbol(string(want)), got))
}
