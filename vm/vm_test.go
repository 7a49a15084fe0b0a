package vm

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/pkg/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) []slp.Obj {
	t.Helper()
	exprs, err := slp.Parse(src)
	require.NoError(t, err)
	return exprs
}

func evalSrc(t *testing.T, src string, env *slp.Env) (slp.Obj, *slp.Env, error) {
	t.Helper()
	return EvalProgram(parse(t, src), env, sys.Default(io.Discard))
}

func mustEval(t *testing.T, src string) slp.Obj {
	t.Helper()
	v, _, err := evalSrc(t, src, nil)
	require.NoError(t, err, src)
	return v
}

func requireKind(t *testing.T, err error, kind slp.ErrorKind) {
	t.Helper()
	var lerr *slp.Error
	require.True(t, errors.As(err, &lerr), "expected %s, got %v", kind, err)
	assert.Equal(t, kind, lerr.Kind, lerr.Error())
}

func TestEvalResults(t *testing.T) {
	testCases := []struct {
		name     string
		src      string
		expected string
	}{
		{name: "atom", src: "42", expected: "42"},
		{name: "string", src: `"hi"`, expected: `"hi"`},
		{name: "empty list", src: "()", expected: "()"},
		{name: "empty program", src: "", expected: "()"},
		{name: "variadic add", src: "(+ 1 2 3)", expected: "6"},
		{name: "quote", src: "'(a b)", expected: "(a b)"},
		{name: "list form", src: "(list 1 (+ 1 1) 'x)", expected: "(1 2 x)"},
		{name: "if then", src: `(if #t 1 (error "no"))`, expected: "1"},
		{name: "if else", src: `(if #f (error "no") 2)`, expected: "2"},
		{name: "if threads predicate env", src: "(if (def z #t) z 0)", expected: "#t"},
		{name: "cond", src: "(cond (= 1 2) 'a (= 1 1) 'b)", expected: "b"},
		{name: "cond no match", src: "(cond #f 1)", expected: "incomplete-cond"},
		{name: "cond empty", src: "(cond)", expected: "incomplete-cond"},
		{name: "let paired", src: "(let ((a 1) (b (+ a 1))) (+ a b))", expected: "3"},
		{name: "let flat", src: "(let (a 1 b a) b)", expected: "1"},
		{name: "let empty", src: "(let () 7)", expected: "7"},
		{name: "let multi body", src: "(let (a 1) (def b 2) (+ a b))", expected: "3"},
		{name: "fn multi body", src: "((fn () (def a 1) (+ a 1)))", expected: "2"},
		{name: "lambda alias", src: "((lambda (x y) (- x y)) 5 3)", expected: "2"},
		{name: "closure", src: "(def mk (fn (n) (fn (x) (+ x n)))) (def add2 (mk 2)) (add2 5)", expected: "7"},
		{name: "captured env wins", src: "(def n 1) (def f (fn () n)) (def n 5) (f)", expected: "1"},
		{name: "recursion", src: "(def fact (fn (n) (if (< n 2) 1 (* n (fact (- n 1)))))) (fact 10)", expected: "3628800"},
		{name: "args thread env", src: "(+ (do (def q 1) q) q)", expected: "2"},
		{name: "list ops", src: "(def xs (cons 1 '(2 3))) (list (car xs) (cdr xs) (len xs) (empty? '()))", expected: "(1 (2 3) 3 #t)"},
		{name: "map values", src: "(get (assoc (map 'a 1) 'b 2) 'b)", expected: "2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mustEval(t, tc.src).Encode())
		})
	}
}

func TestEvalErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		kind slp.ErrorKind
	}{
		{name: "unbound", src: "x", kind: slp.ErrUnboundVariable},
		{name: "unbound head", src: "(nosuch 1)", kind: slp.ErrUnboundVariable},
		{name: "syscall arity", src: "(car '(1) '(2))", kind: slp.ErrSyscallNotFound},
		{name: "apply non function", src: "(1 2)", kind: slp.ErrCannotApplyNonFunction},
		{name: "surplus args", src: "((fn (x) x) 1 2)", kind: slp.ErrArityMismatch},
		{name: "missing args", src: "(def f (fn (x y) x)) (f 1)", kind: slp.ErrArityMismatch},
		{name: "uneven flat", src: "(let (a) a)", kind: slp.ErrUnevenBindings},
		{name: "uneven pair", src: "(let ((a 1 2)) a)", kind: slp.ErrUnevenBindings},
		{name: "non symbol pair", src: "(let ((1 2)) 1)", kind: slp.ErrNonSymbolBindingName},
		{name: "non symbol flat", src: "(let (1 2) 1)", kind: slp.ErrNonSymbolBindingName},
		{name: "non symbol def", src: "(def 1 2)", kind: slp.ErrNonSymbolBindingName},
		{name: "non symbol param", src: "(fn (1) 1)", kind: slp.ErrNonSymbolBindingName},
		{name: "if arity", src: "(if #t 1)", kind: slp.ErrMalformedForm},
		{name: "empty do", src: "(do)", kind: slp.ErrMalformedForm},
		{name: "odd cond", src: "(cond #t)", kind: slp.ErrMalformedForm},
		{name: "quote arity", src: "(quote)", kind: slp.ErrMalformedForm},
		{name: "duplicate param", src: "((fn (x x) x) 1 2)", kind: slp.ErrMalformedForm},
		{name: "reserved def", src: "(def if 1)", kind: slp.ErrMalformedForm},
		{name: "reserved let", src: "(let (wait 1) wait)", kind: slp.ErrMalformedForm},
		{name: "reserved param", src: "(fn (list) list)", kind: slp.ErrMalformedForm},
		{name: "user error", src: `(error "boom")`, kind: slp.ErrUserError},
		{name: "syscall failed", src: "(car '())", kind: slp.ErrSyscallFailed},
		{name: "pid outside process", src: "(pid)", kind: slp.ErrNotInProcess},
		{name: "wait outside process", src: "(wait)", kind: slp.ErrNotInProcess},
		{name: "primitive arity", src: "(send 1)", kind: slp.ErrArityMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := evalSrc(t, tc.src, nil)
			requireKind(t, err, tc.kind)
		})
	}
}

func TestDefThenUse(t *testing.T) {
	v, env, err := evalSrc(t, "(def x 2) (+ x 1)", slp.NewEnv())
	require.NoError(t, err)
	assert.True(t, slp.Equal(slp.NewInt(3), v))

	x, ok := env.Get("x")
	require.True(t, ok)
	assert.True(t, slp.Equal(slp.NewInt(2), x))
}

func TestLetDoesNotLeak(t *testing.T) {
	start := slp.NewEnv().Bind("y", slp.NewInt(10))
	v, env, err := evalSrc(t, "(let ((a 1) (b (+ a y))) (def c 0) (+ a b))", start)
	require.NoError(t, err)
	assert.True(t, slp.Equal(slp.NewInt(12), v))
	assert.Equal(t, []slp.Symbol{"y"}, env.Keys())
}

func TestDoLeaksForward(t *testing.T) {
	v, env, err := evalSrc(t, "(do (def a 1) (def b (+ a 1)))", nil)
	require.NoError(t, err)
	assert.True(t, slp.Equal(slp.NewInt(2), v))
	assert.Equal(t, []slp.Symbol{"a", "b"}, env.Keys())

	// a def is never visible to earlier siblings
	_, _, err = evalSrc(t, "(do a (def a 1))", nil)
	requireKind(t, err, slp.ErrUnboundVariable)
}

func TestApplicationRestoresCallerEnv(t *testing.T) {
	_, _, err := evalSrc(t, "(def f (fn () (def inner 1))) (f) inner", nil)
	requireKind(t, err, slp.ErrUnboundVariable)
}

func TestErrorStopsRemainingSiblings(t *testing.T) {
	var out bytes.Buffer
	exprs := parse(t, `(print "before") (list (error 'x) (print "after"))`)
	_, _, err := EvalProgram(exprs, nil, sys.Default(&out))
	requireKind(t, err, slp.ErrUserError)
	assert.Equal(t, "before\n", out.String())
}

func TestTailCallsRunInBoundedStack(t *testing.T) {
	m := New(Config{Table: sys.Default(io.Discard), MaxFrames: 32})
	m.Load(parse(t, "(def loop (fn (n) (if (= n 0) 'done (loop (- n 1))))) (loop 1000)"), nil)
	v, _, err := m.Complete()
	require.NoError(t, err)
	assert.True(t, v.IsSymbol("done"))

	m = New(Config{Table: sys.Default(io.Discard), MaxFrames: 32})
	m.Load(parse(t, "(def down (fn (n) (if (= n 0) 0 (+ 1 (down (- n 1)))))) (down 1000)"), nil)
	_, _, err = m.Complete()
	requireKind(t, err, slp.ErrStackOverflow)
}

func TestRunYieldsOnBudget(t *testing.T) {
	m := New(Config{Table: sys.Default(io.Discard)})
	m.Load(parse(t, "(+ 1 (+ 2 3))"), nil)

	assert.Equal(t, StatusYielded, m.Run(1))
	steps := 1
	for {
		st := m.Run(1)
		steps++
		if st == StatusDone {
			break
		}
		require.Equal(t, StatusYielded, st)
		require.Less(t, steps, 100)
	}
	v, _ := m.Result()
	assert.True(t, slp.Equal(slp.NewInt(6), v))
	assert.GreaterOrEqual(t, m.Reductions(), uint64(steps-1))

	// a finished machine stays finished
	assert.Equal(t, StatusDone, m.Run(10))
}

func TestCloneIsIndependent(t *testing.T) {
	m := New(Config{Table: sys.Default(io.Discard)})
	m.Load(parse(t, "(list 1 2 (+ 3 4))"), nil)
	require.Equal(t, StatusYielded, m.Run(3))

	c := m.Clone()
	v1, _, err := m.Complete()
	require.NoError(t, err)
	v2, _, err := c.Complete()
	require.NoError(t, err)
	assert.Equal(t, "(1 2 7)", v1.Encode())
	assert.Equal(t, "(1 2 7)", v2.Encode())
}

func TestUnloadedMachine(t *testing.T) {
	m := New(Config{})
	assert.Equal(t, StatusTerminated, m.Run(10))
	require.NotNil(t, m.Failure())
	assert.ErrorIs(t, m.Resume(slp.True), ErrVMNotWaiting)
}

type sent struct {
	to  slp.Pid
	msg slp.Obj
}

type fakeHost struct {
	self    slp.Pid
	inbox   []slp.Obj
	sent    []sent
	forked  []*Machine
	pids    []slp.Pid
	watched []slp.Pid
}

func newFakeHost() *fakeHost {
	return &fakeHost{self: slp.NewPid()}
}

func (h *fakeHost) Self() slp.Pid { return h.self }

func (h *fakeHost) Send(to slp.Pid, msg slp.Obj) error {
	h.sent = append(h.sent, sent{to: to, msg: msg})
	return nil
}

func (h *fakeHost) Receive() (slp.Obj, bool) {
	if len(h.inbox) == 0 {
		return slp.Obj{}, false
	}
	msg := h.inbox[0]
	h.inbox = h.inbox[1:]
	return msg, true
}

func (h *fakeHost) Fork(child *Machine) (slp.Pid, error) {
	pid := slp.NewPid()
	h.forked = append(h.forked, child)
	h.pids = append(h.pids, pid)
	return pid, nil
}

func (h *fakeHost) Watch(target slp.Pid) error {
	h.watched = append(h.watched, target)
	return nil
}

func hosted(t *testing.T, h Host, out io.Writer, src string) *Machine {
	t.Helper()
	m := New(Config{Table: sys.Default(out), Host: h})
	m.Load(parse(t, src), nil)
	return m
}

func TestForkReturnsTruthyInExactlyOne(t *testing.T) {
	h := newFakeHost()
	m := hosted(t, h, io.Discard, "(def a 1) (if (fork) (list 'child a) (list 'parent a))")

	v, _, err := m.Complete()
	require.NoError(t, err)
	assert.Equal(t, "(parent 1)", v.Encode())

	require.Len(t, h.forked, 1)
	child := h.forked[0]
	child.SetHost(newFakeHost())
	cv, _, err := child.Complete()
	require.NoError(t, err)
	assert.Equal(t, "(child 1)", cv.Encode())
}

func TestWaitBlocksUntilResumed(t *testing.T) {
	h := newFakeHost()
	m := hosted(t, h, io.Discard, "(def x (wait)) (+ x 1)")

	assert.Equal(t, StatusBlocked, m.Run(100))
	assert.Equal(t, StatusBlocked, m.Run(100))
	require.NoError(t, m.Resume(slp.NewInt(41)))

	v, env, err := m.Complete()
	require.NoError(t, err)
	assert.True(t, slp.Equal(slp.NewInt(42), v))
	x, _ := env.Get("x")
	assert.True(t, slp.Equal(slp.NewInt(41), x))
}

func TestWaitTakesBufferedMessage(t *testing.T) {
	h := newFakeHost()
	h.inbox = []slp.Obj{slp.NewSymbol("first"), slp.NewSymbol("second")}
	m := hosted(t, h, io.Discard, "(list (wait) (wait))")

	v, _, err := m.Complete()
	require.NoError(t, err)
	assert.Equal(t, "(first second)", v.Encode())
}

func TestSpawnRunsFunctionThenTerminates(t *testing.T) {
	var out bytes.Buffer
	h := newFakeHost()
	m := hosted(t, h, &out, "(spawn (fn () (print 'hi)))")

	v, _, err := m.Complete()
	require.NoError(t, err)
	require.Len(t, h.forked, 1)
	pid, ok := v.AsPid()
	require.True(t, ok)
	assert.Equal(t, h.pids[0], pid)
	assert.Empty(t, out.String())

	child := h.forked[0]
	child.SetHost(newFakeHost())
	assert.Equal(t, StatusTerminated, child.Run(1000))
	assert.True(t, slp.Equal(NormalExit, child.Reason()))
	assert.Nil(t, child.Failure())
	assert.Equal(t, "hi\n", out.String())
}

func TestSpawnRejectsBadFunctions(t *testing.T) {
	_, _, err := hosted(t, newFakeHost(), io.Discard, "(spawn (fn (x) x))").Complete()
	requireKind(t, err, slp.ErrArityMismatch)

	_, _, err = hosted(t, newFakeHost(), io.Discard, "(spawn 1)").Complete()
	requireKind(t, err, slp.ErrCannotApplyNonFunction)
}

func TestSendCopiesMessage(t *testing.T) {
	h := newFakeHost()
	m := hosted(t, h, io.Discard, "(send (pid) '(1 2))")

	v, _, err := m.Complete()
	require.NoError(t, err)
	pid, ok := v.AsPid()
	require.True(t, ok)
	assert.Equal(t, h.self, pid)

	require.Len(t, h.sent, 1)
	assert.Equal(t, h.self, h.sent[0].to)
	assert.Equal(t, "(1 2)", h.sent[0].msg.Encode())

	_, _, err = hosted(t, newFakeHost(), io.Discard, "(send 1 2)").Complete()
	requireKind(t, err, slp.ErrTypeMismatch)
}

func TestWatchAndTerminate(t *testing.T) {
	var out bytes.Buffer
	h := newFakeHost()
	m := hosted(t, h, &out, "(watch (pid)) (terminate 'bye) (print 'never)")

	assert.Equal(t, StatusTerminated, m.Run(1000))
	assert.True(t, m.Reason().IsSymbol("bye"))
	assert.Nil(t, m.Failure())
	assert.Equal(t, []slp.Pid{h.self}, h.watched)
	assert.Empty(t, out.String())

	_, _, err := m.Complete()
	assert.ErrorIs(t, err, ErrVMTerminated)
}

func TestEscapedErrorBecomesReason(t *testing.T) {
	m := hosted(t, newFakeHost(), io.Discard, "(car 5)")
	assert.Equal(t, StatusTerminated, m.Run(1000))
	require.NotNil(t, m.Failure())
	assert.Equal(t, slp.ErrSyscallFailed, m.Failure().Kind)

	e, ok := m.Reason().AsError()
	require.True(t, ok)
	assert.Equal(t, slp.ErrSyscallFailed, e.Kind)
}
