package slp

import (
	"strconv"
	"strings"
)

func encode(sb *strings.Builder, o Obj, quote bool) {
	switch o.Type {
	case OBJ_TYPE_INT:
		n, _ := o.AsInt()
		sb.WriteString(strconv.FormatInt(int64(n), 10))
	case OBJ_TYPE_BOOL:
		if o.Truthy() {
			sb.WriteString("#t")
		} else {
			sb.WriteString("#f")
		}
	case OBJ_TYPE_SYMBOL:
		s, _ := o.AsSymbol()
		sb.WriteString(string(s))
	case OBJ_TYPE_STRING:
		s, _ := o.AsString()
		if quote {
			sb.WriteString(strconv.Quote(s))
		} else {
			sb.WriteString(s)
		}
	case OBJ_TYPE_LIST:
		l, _ := o.AsList()
		sb.WriteByte('(')
		for i, item := range l {
			if i > 0 {
				sb.WriteByte(' ')
			}
			encode(sb, item, true)
		}
		sb.WriteByte(')')
	case OBJ_TYPE_MAP:
		m, _ := o.AsMap()
		sb.WriteByte('{')
		first := true
		m.Each(func(k Symbol, v Obj) bool {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			sb.WriteString(string(k))
			sb.WriteByte(' ')
			encode(sb, v, true)
			return true
		})
		sb.WriteByte('}')
	case OBJ_TYPE_LAMBDA:
		l, _ := o.AsLambda()
		sb.WriteString("#<lambda (")
		for i, p := range l.Params {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(string(p))
		}
		sb.WriteString(")>")
	case OBJ_TYPE_PID:
		p, _ := o.AsPid()
		sb.WriteString("#<pid ")
		sb.WriteString(p.String())
		sb.WriteByte('>')
	case OBJ_TYPE_ERROR:
		e, _ := o.AsError()
		sb.WriteString("#<error ")
		sb.WriteString(string(e.Kind))
		sb.WriteByte(' ')
		encode(sb, e.Payload, true)
		sb.WriteByte('>')
	default:
		sb.WriteString("#<unknown>")
	}
}
