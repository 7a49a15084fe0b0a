package vm

import (
	"github.com/InsulaLabs/isl/pkg/slp"
)

var (
	// IncompleteCond is what cond yields when no clause matched.
	IncompleteCond = slp.NewSymbol("incomplete-cond")

	// NormalExit is the reason a spawned process terminates with once its
	// function returns.
	NormalExit = slp.NewSymbol("normal")
)

type specialForm func(m *Machine, form slp.List, env *slp.Env) error

var specialForms map[slp.Symbol]specialForm

func init() {
	specialForms = map[slp.Symbol]specialForm{
		"quote":  formQuote,
		"if":     formIf,
		"do":     formDo,
		"def":    formDef,
		"let":    formLet,
		"fn":     formFn,
		"lambda": formFn,
		"cond":   formCond,
		"list":   formList,
	}
}

// IsSpecialForm reports whether name is interpreted by the evaluator
// rather than looked up.
func IsSpecialForm(name slp.Symbol) bool {
	_, ok := specialForms[name]
	return ok
}

// reserved names are dispatched before any lookup, so a binding of one
// could never be read back.
func reserved(name slp.Symbol) bool {
	return IsSpecialForm(name) || IsPrimitive(name)
}

func malformed(form slp.List) *slp.Error {
	return slp.Raise(slp.ErrMalformedForm, slp.NewList(form...))
}

// step performs one dispatch on m.expr.
func (m *Machine) step() error {
	expr, env := m.expr, m.env

	switch expr.Type {
	case slp.OBJ_TYPE_SYMBOL:
		name, _ := expr.AsSymbol()
		v, err := env.Lookup(name)
		if err != nil {
			return err
		}
		m.ret(v, env)
		return nil
	case slp.OBJ_TYPE_LIST:
	default:
		m.ret(expr, env)
		return nil
	}

	form, _ := expr.AsList()
	if len(form) == 0 {
		m.ret(slp.Empty, env)
		return nil
	}

	if name, ok := form[0].AsSymbol(); ok {
		if sf, ok := specialForms[name]; ok {
			return sf(m, form, env)
		}
		if p, ok := primitives[name]; ok {
			if len(form)-1 != p.arity {
				return arityMismatch(form[0], p.arity, len(form)-1)
			}
			return m.evalArgs(&kArgs{target: targetPrim, name: name, pending: form[1:]}, env)
		}
		if m.table.Has(name) {
			return m.evalArgs(&kArgs{target: targetSyscall, name: name, pending: form[1:]}, env)
		}
	}

	if err := m.push(&kCallee{form: form}); err != nil {
		return err
	}
	m.eval(form[0], env)
	return nil
}

// evalSeq evaluates exprs in order. The last one is evaluated in place of
// the sequence so it needs no frame.
func (m *Machine) evalSeq(exprs []slp.Obj, env *slp.Env) error {
	if len(exprs) > 1 {
		if err := m.push(&kDo{rest: exprs[1:]}); err != nil {
			return err
		}
	}
	m.eval(exprs[0], env)
	return nil
}

func (m *Machine) evalArgs(k *kArgs, env *slp.Env) error {
	if len(k.pending) == 0 {
		return m.dispatch(k, env)
	}
	k.done = make([]slp.Obj, 0, len(k.pending))
	if err := m.push(k); err != nil {
		return err
	}
	m.eval(k.pending[0], env)
	return nil
}

func (m *Machine) dispatch(k *kArgs, env *slp.Env) error {
	switch k.target {
	case targetList:
		m.ret(slp.NewList(k.done...), env)
		return nil
	case targetSyscall:
		sc, err := m.table.Lookup(k.name, len(k.done))
		if err != nil {
			return err
		}
		m.charge += sc.Cost
		res, err := sc.Call(k.done)
		if err != nil {
			return err
		}
		m.ret(res, env)
		return nil
	case targetPrim:
		return primitives[k.name].fn(m, k.done, env)
	default:
		return m.apply(k.lambda, k.done, env)
	}
}

// apply evaluates the body of lam in a scope built from the caller's
// environment overlaid with the captured one and then the parameters. The
// caller's environment is current again once the body returns.
func (m *Machine) apply(lam *slp.Lambda, args []slp.Obj, env *slp.Env) error {
	scope := slp.Merge(env, lam.Env)
	for i, p := range lam.Params {
		scope = scope.Bind(p, args[i])
	}
	if err := m.pushRestore(env); err != nil {
		return err
	}
	m.eval(lam.Body, scope)
	return nil
}

func formQuote(m *Machine, form slp.List, env *slp.Env) error {
	if len(form) != 2 {
		return malformed(form)
	}
	m.ret(form[1], env)
	return nil
}

// (if pred then else)
func formIf(m *Machine, form slp.List, env *slp.Env) error {
	if len(form) != 4 {
		return malformed(form)
	}
	if err := m.push(&kIf{then: form[2], els: form[3]}); err != nil {
		return err
	}
	m.eval(form[1], env)
	return nil
}

func formDo(m *Machine, form slp.List, env *slp.Env) error {
	if len(form) < 2 {
		return malformed(form)
	}
	return m.evalSeq(form[1:], env)
}

// (def name expr)
func formDef(m *Machine, form slp.List, env *slp.Env) error {
	if len(form) != 3 {
		return malformed(form)
	}
	name, ok := form[1].AsSymbol()
	if !ok {
		return slp.Raise(slp.ErrNonSymbolBindingName, form[1])
	}
	if reserved(name) {
		return malformed(form)
	}
	if err := m.push(&kDef{name: name}); err != nil {
		return err
	}
	m.eval(form[2], env)
	return nil
}

// (let ((a 1) (b a)) body...) or (let (a 1 b a) body...)
func formLet(m *Machine, form slp.List, env *slp.Env) error {
	if len(form) < 3 {
		return malformed(form)
	}
	bindings, err := parseBindings(form[1])
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if reserved(b.name) {
			return malformed(form)
		}
	}
	if err := m.pushRestore(env); err != nil {
		return err
	}
	body := form[2:]
	if len(bindings) == 0 {
		return m.evalSeq(body, env)
	}
	if err := m.push(&kLet{bindings: bindings, body: body}); err != nil {
		return err
	}
	m.eval(bindings[0].expr, env)
	return nil
}

func parseBindings(bindings slp.Obj) ([]binding, error) {
	items, ok := bindings.AsList()
	if !ok {
		return nil, slp.Raise(slp.ErrUnevenBindings, bindings)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var out []binding
	if items[0].Type == slp.OBJ_TYPE_LIST {
		out = make([]binding, 0, len(items))
		for _, item := range items {
			pair, ok := item.AsList()
			if !ok || len(pair) != 2 {
				return nil, slp.Raise(slp.ErrUnevenBindings, bindings)
			}
			name, ok := pair[0].AsSymbol()
			if !ok {
				return nil, slp.Raise(slp.ErrNonSymbolBindingName, pair[0])
			}
			out = append(out, binding{name: name, expr: pair[1]})
		}
		return out, nil
	}

	if len(items)%2 != 0 {
		return nil, slp.Raise(slp.ErrUnevenBindings, bindings)
	}
	out = make([]binding, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		name, ok := items[i].AsSymbol()
		if !ok {
			return nil, slp.Raise(slp.ErrNonSymbolBindingName, items[i])
		}
		out = append(out, binding{name: name, expr: items[i+1]})
	}
	return out, nil
}

// (fn (params...) body...)
func formFn(m *Machine, form slp.List, env *slp.Env) error {
	if len(form) < 3 {
		return malformed(form)
	}
	rawParams, ok := form[1].AsList()
	if !ok {
		return malformed(form)
	}
	params := make([]slp.Symbol, len(rawParams))
	seen := make(map[slp.Symbol]struct{}, len(rawParams))
	for i, p := range rawParams {
		name, ok := p.AsSymbol()
		if !ok {
			return slp.Raise(slp.ErrNonSymbolBindingName, p)
		}
		if _, dup := seen[name]; dup || reserved(name) {
			return malformed(form)
		}
		seen[name] = struct{}{}
		params[i] = name
	}
	body := form[2]
	if len(form) > 3 {
		body = slp.NewList(append(slp.List{slp.NewSymbol("do")}, form[2:]...)...)
	}
	m.ret(slp.NewLambda(params, body, env), env)
	return nil
}

// (cond pred1 body1 pred2 body2 ...)
func formCond(m *Machine, form slp.List, env *slp.Env) error {
	clauses := form[1:]
	if len(clauses)%2 != 0 {
		return malformed(form)
	}
	if len(clauses) == 0 {
		m.ret(IncompleteCond, env)
		return nil
	}
	if err := m.push(&kCond{clauses: clauses}); err != nil {
		return err
	}
	m.eval(clauses[0], env)
	return nil
}

func formList(m *Machine, form slp.List, env *slp.Env) error {
	return m.evalArgs(&kArgs{target: targetList, pending: form[1:]}, env)
}
