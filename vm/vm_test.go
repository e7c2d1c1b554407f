package vm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/vireo/pkg/parser"
)

// newTestRuntime builds a runtime with the control intrinsics plus the bare
// minimum of natives the evaluation tests lean on.
func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := NewRuntime()
	if err := RegisterIntrinsics(rt); err != nil {
		t.Fatal(err)
	}

	num := TypeMatcher{Type: rt.Core.Number}
	binary := []Matcher{num, num}
	natives := []struct {
		selector string
		fn       func(a, b Number) Value
	}{
		{"+", func(a, b Number) Value { return a + b }},
		{"-", func(a, b Number) Value { return a - b }},
		{"<", func(a, b Number) Value { return Bool(a < b) }},
	}
	for _, n := range natives {
		fn := n.fn
		err := rt.DefineNative(rt.Root, n.selector, binary,
			func(_ *Context, recv Value, args []Value) (Value, error) {
				return fn(recv.(Number), args[0].(Number)), nil
			})
		if err != nil {
			t.Fatal(err)
		}
	}
	return rt
}

func eval(t *testing.T, rt *Runtime, src string) (Value, error) {
	t.Helper()
	expr, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return rt.EvalToplevel(expr, nil)
}

func evalOK(t *testing.T, rt *Runtime, src string) Value {
	t.Helper()
	v, err := eval(t, rt, src)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func evalFatal(t *testing.T, rt *Runtime, src, wantSubstr string) *RunError {
	t.Helper()
	_, err := eval(t, rt, src)
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("eval %q: want a fatal error, got %v", src, err)
	}
	if !strings.Contains(re.Message, wantSubstr) {
		t.Fatalf("eval %q: error %q does not mention %q", src, re.Message, wantSubstr)
	}
	return re
}

// defineBodyMethod registers a quote-bodied method whose body is parsed from
// source, the way the definition forms do at the language level.
func defineBodyMethod(t *testing.T, rt *Runtime, selector string, params []string, body string) {
	t.Helper()
	expr, err := parser.Parse(body)
	if err != nil {
		t.Fatal(err)
	}
	matchers := make([]Matcher, len(params))
	for i := range matchers {
		matchers[i] = AnyMatcher{}
	}
	q := &Quote{Params: params, Body: expr, Ctx: rt.Root, Name: selector}
	if err := rt.DefineMethod(rt.Root, selector, matchers, q); err != nil {
		t.Fatal(err)
	}
}

// ---------------------------------------------------------------------------
// Basic evaluation
// ---------------------------------------------------------------------------

func TestEvalLiteralAndSequence(t *testing.T) {
	rt := newTestRuntime(t)
	if v := evalOK(t, rt, "42"); v != Number(42) {
		t.Errorf("got %s, want 42", v)
	}
	if v := evalOK(t, rt, "1; 2; 3"); v != Number(3) {
		t.Errorf("sequence result = %s, want the last value", v)
	}
}

func TestEvalArithmetic(t *testing.T) {
	rt := newTestRuntime(t)
	if v := evalOK(t, rt, "1 + 2 + 3"); v != Number(6) {
		t.Errorf("got %s, want 6", v)
	}
	if v := evalOK(t, rt, "10 - 2 - 3"); v != Number(5) {
		t.Errorf("subtraction should associate left, got %s", v)
	}
}

func TestEvalLocalsAndAssignment(t *testing.T) {
	rt := newTestRuntime(t)
	v := evalOK(t, rt, "local: x is: 10\nset: x to: x + 5\nx")
	if v != Number(15) {
		t.Errorf("got %s, want 15", v)
	}
}

func TestEvalPlainValueBinding(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Root.Define("answer", Number(42)); err != nil {
		t.Fatal(err)
	}
	// A bare name bound to a plain value is that value.
	if v := evalOK(t, rt, "answer"); v != Number(42) {
		t.Errorf("got %s, want 42", v)
	}
}

func TestEvalTupleAndVectorLiterals(t *testing.T) {
	rt := newTestRuntime(t)
	v := evalOK(t, rt, "(1, 2 + 3)")
	tup, ok := v.(*Tuple)
	if !ok || len(tup.Components) != 2 || tup.Components[1] != Number(5) {
		t.Fatalf("got %s, want (1, 5)", v)
	}
	v = evalOK(t, rt, "{1; 2; 3}")
	vec, ok := v.(*Vector)
	if !ok || len(vec.Components) != 3 {
		t.Fatalf("got %s, want a three-element vector", v)
	}
}

// ---------------------------------------------------------------------------
// Dispatch through the VM
// ---------------------------------------------------------------------------

func TestEvalMethodDispatch(t *testing.T) {
	rt := newTestRuntime(t)
	defineBodyMethod(t, rt, "double", []string{"self"}, "self + self")
	if v := evalOK(t, rt, "21 double"); v != Number(42) {
		t.Errorf("got %s, want 42", v)
	}
}

func TestEvalDispatchPicksByType(t *testing.T) {
	rt := newTestRuntime(t)
	reg := func(matcher Matcher, result string) {
		err := rt.DefineNative(rt.Root, "describe", []Matcher{matcher},
			func(_ *Context, _ Value, _ []Value) (Value, error) {
				return String(result), nil
			})
		if err != nil {
			t.Fatal(err)
		}
	}
	reg(TypeMatcher{Type: rt.Core.Number}, "number")
	reg(TypeMatcher{Type: rt.Core.String}, "string")

	if v := evalOK(t, rt, "1 describe"); v != String("number") {
		t.Errorf("got %s", v)
	}
	if v := evalOK(t, rt, "\"s\" describe"); v != String("string") {
		t.Errorf("got %s", v)
	}
}

func TestEvalRedefinitionInvalidatesCompiledBody(t *testing.T) {
	rt := newTestRuntime(t)
	any := []Matcher{AnyMatcher{}}
	err := rt.DefineNative(rt.Root, "speak", any,
		func(_ *Context, _ Value, _ []Value) (Value, error) { return String("general"), nil })
	if err != nil {
		t.Fatal(err)
	}
	defineBodyMethod(t, rt, "go", []string{"self"}, "1 speak")

	if v := evalOK(t, rt, "go"); v != String("general") {
		t.Fatalf("got %s, want general", v)
	}

	// A more specific overload registered later must win on the next call,
	// even though the calling body was already compiled.
	err = rt.DefineNative(rt.Root, "speak", []Matcher{ValueMatcher{Literal: Number(1)}},
		func(_ *Context, _ Value, _ []Value) (Value, error) { return String("one"), nil })
	if err != nil {
		t.Fatal(err)
	}
	if v := evalOK(t, rt, "go"); v != String("one") {
		t.Errorf("got %s, want one", v)
	}
}

func TestEnsureMultiMethodArityConflict(t *testing.T) {
	rt := newTestRuntime(t)
	any := AnyMatcher{}
	if err := rt.DefineNative(rt.Root, "f:", []Matcher{any, any},
		func(_ *Context, _ Value, _ []Value) (Value, error) { return Null{}, nil }); err != nil {
		t.Fatal(err)
	}
	err := rt.DefineNative(rt.Root, "f:", []Matcher{any, any, any},
		func(_ *Context, _ Value, _ []Value) (Value, error) { return Null{}, nil })
	if err == nil {
		t.Fatal("registering a different arity on one selector should fail")
	}
}

// ---------------------------------------------------------------------------
// Intrinsics
// ---------------------------------------------------------------------------

func TestEvalIfThenElse(t *testing.T) {
	rt := newTestRuntime(t)
	cases := []struct {
		src  string
		want Value
	}{
		{"if: (1 < 2) then: 3 else: 4", Number(3)},
		{"if: (2 < 1) then: 3 else: 4", Number(4)},
		{"if: (1 < 2) then: [9] else: 0", Number(9)},
		{"if: (2 < 1) then: 0 else: [7 + 1]", Number(8)},
		// Anything but true takes the else branch.
		{"if: 0 then: 1 else: 2", Number(2)},
	}
	for _, tc := range cases {
		if v := evalOK(t, rt, tc.src); !Equal(v, tc.want) {
			t.Errorf("%q = %s, want %s", tc.src, v, tc.want)
		}
	}
}

func TestEvalQuoteCall(t *testing.T) {
	rt := newTestRuntime(t)
	if v := evalOK(t, rt, "[1 + 2] call"); v != Number(3) {
		t.Errorf("got %s, want 3", v)
	}
	if v := evalOK(t, rt, "\\a b [a + b] call*: (4, 5)"); v != Number(9) {
		t.Errorf("got %s, want 9", v)
	}
	if v := evalOK(t, rt, "[] call"); !Equal(v, Null{}) {
		t.Errorf("empty quote should evaluate to null, got %s", v)
	}
}

func TestEvalQuoteDefaultItParameter(t *testing.T) {
	rt := newTestRuntime(t)
	if v := evalOK(t, rt, "[it + 1] call: 41"); v != Number(42) {
		t.Errorf("got %s, want 42", v)
	}
}

func TestEvalQuoteClosesOverLocals(t *testing.T) {
	rt := newTestRuntime(t)
	v := evalOK(t, rt, "local: n is: 5\nlocal: q is: [n + 1]\nset: n to: 10\nq call")
	if v != Number(11) {
		t.Errorf("quote should see the current binding, got %s", v)
	}
}

func TestEvalQuoteArityMismatch(t *testing.T) {
	rt := newTestRuntime(t)
	evalFatal(t, rt, "\\a b [a] call: 1", "internal-error")
}

func TestEvalCallOnPlainValue(t *testing.T) {
	rt := newTestRuntime(t)
	// call on a non-invocable value is that value.
	if v := evalOK(t, rt, "7 call"); v != Number(7) {
		t.Errorf("got %s, want 7", v)
	}
}

func TestEvalPanic(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := eval(t, rt, "panic!: 3")
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("want a panic error, got %v", err)
	}
	if !Equal(pe.Value, Number(3)) {
		t.Errorf("panic value = %s, want 3", pe.Value)
	}
}

// ---------------------------------------------------------------------------
// Tail calls and frame limits
// ---------------------------------------------------------------------------

func TestEvalTailRecursionRunsInBoundedFrames(t *testing.T) {
	rt := newTestRuntime(t)
	rt.MaxFrames = 40
	defineBodyMethod(t, rt, "loop:", []string{"self", "n"},
		"if: (n < 100000) then: [loop: (n + 1)] else: [n]")
	if v := evalOK(t, rt, "loop: 0"); v != Number(100000) {
		t.Errorf("got %s, want 100000", v)
	}
}

func TestTailLoopFrameDepthStaysFlat(t *testing.T) {
	rt := newTestRuntime(t)
	maxDepth := 0
	err := rt.DefineIntrinsic(rt.Root, "note-depth", []Matcher{AnyMatcher{}},
		func(m *VM, _ bool, _ []Value) error {
			if d := m.Depth(); d > maxDepth {
				maxDepth = d
			}
			m.top().push(Null{})
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	defineBodyMethod(t, rt, "loop:", []string{"self", "n"},
		"note-depth\nif: (n < 500) then: [loop: (n + 1)] else: [n]")

	if v := evalOK(t, rt, "loop: 0"); v != Number(500) {
		t.Fatalf("got %s, want 500", v)
	}
	if maxDepth > 3 {
		t.Errorf("frame depth reached %d: tail sends must replace the caller frame", maxDepth)
	}
}

func TestEvalNonTailRecursionHitsFrameLimit(t *testing.T) {
	rt := newTestRuntime(t)
	rt.MaxFrames = 64
	defineBodyMethod(t, rt, "deep:", []string{"self", "n"},
		"(deep: (n + 1)) + 1")
	evalFatal(t, rt, "deep: 0", "call depth exceeded")
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

func TestEvalUnhandledConditionIsFatal(t *testing.T) {
	rt := newTestRuntime(t)
	re := evalFatal(t, rt, "missing", "unhandled condition "+CondUndefinedSlot)
	if len(re.Trace) == 0 {
		t.Error("fatal error should carry a stack trace")
	}
}

func TestEvalNoMatchingMethodIsSignaled(t *testing.T) {
	rt := newTestRuntime(t)
	evalFatal(t, rt, "\"s\" + 1", CondNoMatchingMethod)
}

func TestEvalPlainValueHandler(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Root.Define(handlerName, Number(7)); err != nil {
		t.Fatal(err)
	}
	// The handler value becomes the faulting expression's result and
	// evaluation continues.
	if v := evalOK(t, rt, "missing + 1"); v != Number(8) {
		t.Errorf("got %s, want 8", v)
	}
}

func TestEvalHandlerReceivesConditionPair(t *testing.T) {
	rt := newTestRuntime(t)
	var gotName, gotMessage string
	err := rt.DefineNative(rt.Root, handlerName, []Matcher{AnyMatcher{}, AnyMatcher{}},
		func(_ *Context, recv Value, args []Value) (Value, error) {
			pair := recv.(*Tuple)
			gotName = string(pair.Components[0].(String))
			gotMessage = string(pair.Components[1].(String))
			if _, ok := args[0].(*ContextValue); !ok {
				t.Errorf("handler argument = %T, want a context", args[0])
			}
			return String("recovered"), nil
		})
	if err != nil {
		t.Fatal(err)
	}

	if v := evalOK(t, rt, "missing"); v != String("recovered") {
		t.Errorf("got %s, want the handler result", v)
	}
	if gotName != CondUndefinedSlot {
		t.Errorf("condition name = %q, want %s", gotName, CondUndefinedSlot)
	}
	if !strings.Contains(gotMessage, "missing") {
		t.Errorf("condition message %q should name the slot", gotMessage)
	}
}

func TestEvalQuoteHandlerResumesFaultingExpression(t *testing.T) {
	rt := newTestRuntime(t)
	defineBodyMethod(t, rt, handlerName, []string{"c", "ctx"}, "99")
	if v := evalOK(t, rt, "missing + 1"); v != Number(100) {
		t.Errorf("got %s, want 100", v)
	}
}

func TestEvalReentrantSignalIsFatal(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.DefineNative(rt.Root, handlerName, []Matcher{AnyMatcher{}, AnyMatcher{}},
		func(_ *Context, _ Value, _ []Value) (Value, error) {
			return nil, fmt.Errorf("handler fault")
		})
	if err != nil {
		t.Fatal(err)
	}
	evalFatal(t, rt, "missing", "while already handling")
}

func TestEvalQuoteHandlerFaultIsFatal(t *testing.T) {
	rt := newTestRuntime(t)
	defineBodyMethod(t, rt, handlerName, []string{"c", "ctx"}, "also-missing")
	evalFatal(t, rt, "missing", "while already handling")
}

func TestEvalHandlerClearsSignalingAfterRecovery(t *testing.T) {
	rt := newTestRuntime(t)
	defineBodyMethod(t, rt, handlerName, []string{"c", "ctx"}, "0")
	// Two separate faults in one evaluation must each reach the handler.
	if v := evalOK(t, rt, "missing + also-missing + 5"); v != Number(5) {
		t.Errorf("got %s, want 5", v)
	}
}

func TestNativeFaultBecomesInternalError(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.DefineNative(rt.Root, "boom", []Matcher{AnyMatcher{}},
		func(_ *Context, _ Value, _ []Value) (Value, error) {
			panic("host bug")
		})
	if err != nil {
		t.Fatal(err)
	}
	evalFatal(t, rt, "1 boom", CondInternalError)
}

func TestFatalTraceIsInnermostFirst(t *testing.T) {
	rt := newTestRuntime(t)
	defineBodyMethod(t, rt, "outer", []string{"self"}, "(self inner) + 0")
	defineBodyMethod(t, rt, "inner", []string{"self"}, "missing")

	re := evalFatal(t, rt, "1 outer", "unhandled condition")
	if len(re.Trace) < 3 {
		t.Fatalf("trace has %d entries, want at least 3", len(re.Trace))
	}
	if re.Trace[0].Where != "inner" {
		t.Errorf("innermost trace entry = %q, want inner", re.Trace[0].Where)
	}
	if re.Trace[len(re.Trace)-1].Where != "<toplevel>" {
		t.Errorf("outermost trace entry = %q, want <toplevel>", re.Trace[len(re.Trace)-1].Where)
	}
}

// ---------------------------------------------------------------------------
// Compiled spans
// ---------------------------------------------------------------------------

func TestEvalToplevelNilContextUsesRoot(t *testing.T) {
	rt := newTestRuntime(t)
	expr, err := parser.Parse("local: shared is: 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.EvalToplevel(expr, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := rt.Root.Lookup("shared"); !ok {
		t.Error("top-level locals should land in the root context")
	}
}
