package vm

import "testing"

func dispatchFixture(t *testing.T) (*Runtime, *Type, *Type) {
	t.Helper()
	rt := NewRuntime()
	animal, err := rt.DefineType("Animal", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	dog, err := rt.DefineType("Dog", []*Type{animal}, false)
	if err != nil {
		t.Fatal(err)
	}
	return rt, animal, dog
}

func named(name string) *Method {
	return &Method{Native: func(*Context, Value, []Value) (Value, error) {
		return String(name), nil
	}}
}

func methodName(t *testing.T, rt *Runtime, m *Method, args []Value) string {
	t.Helper()
	v, err := m.Native(nil, args[0], args[1:])
	if err != nil {
		t.Fatal(err)
	}
	return string(v.(String))
}

// ---------------------------------------------------------------------------
// Matcher specificity
// ---------------------------------------------------------------------------

func TestMatcherSpecificityOrder(t *testing.T) {
	_, animal, dog := dispatchFixture(t)

	val := ValueMatcher{Literal: Number(1)}
	dogM := TypeMatcher{Type: dog}
	animalM := TypeMatcher{Type: animal}
	any := AnyMatcher{}

	cases := []struct {
		name string
		a, b Matcher
		want bool
	}{
		{"value <= type", val, dogM, true},
		{"value <= any", val, any, true},
		{"type not <= value", dogM, val, false},
		{"subtype <= supertype", dogM, animalM, true},
		{"supertype not <= subtype", animalM, dogM, false},
		{"type <= any", dogM, any, true},
		{"any not <= type", any, dogM, false},
		{"any <= any", any, any, true},
		{"equal values", val, ValueMatcher{Literal: Number(1)}, true},
		{"unequal values", val, ValueMatcher{Literal: Number(2)}, false},
	}
	for _, tc := range cases {
		if got := matcherLE(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: matcherLE = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValueMatcherMatchesStructurally(t *testing.T) {
	rt := NewRuntime()
	m := ValueMatcher{Literal: &Tuple{Components: []Value{Number(1), Number(2)}}}
	if !m.Matches(rt, &Tuple{Components: []Value{Number(1), Number(2)}}) {
		t.Error("tuples with equal components should match a value matcher")
	}
	if m.Matches(rt, &Tuple{Components: []Value{Number(1)}}) {
		t.Error("shorter tuple should not match")
	}
}

func TestTypeMatcherMatchesSubtypes(t *testing.T) {
	rt, animal, dog := dispatchFixture(t)
	_ = dog

	// A dataclass instance of a subtype matches the supertype matcher.
	sub, err := rt.DefineDataclass("Pup", []*Type{animal}, nil)
	if err != nil {
		t.Fatal(err)
	}
	inst := &Instance{Type: sub}
	if !(TypeMatcher{Type: animal}).Matches(rt, inst) {
		t.Error("instance of a subtype should match the supertype matcher")
	}
	if (TypeMatcher{Type: rt.Core.Number}).Matches(rt, inst) {
		t.Error("instance should not match an unrelated type matcher")
	}
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestAddMethodArityChecked(t *testing.T) {
	mm := NewMultiMethod("f:", 2)
	err := mm.AddMethod(&Method{Matchers: []Matcher{AnyMatcher{}}})
	if err == nil {
		t.Fatal("matcher count must equal the multimethod arity")
	}
}

func TestAddMethodDuplicateRejected(t *testing.T) {
	_, _, dog := dispatchFixture(t)
	mm := NewMultiMethod("speak", 1)
	if err := mm.AddMethod(&Method{Matchers: []Matcher{TypeMatcher{Type: dog}}}); err != nil {
		t.Fatal(err)
	}
	err := mm.AddMethod(&Method{Matchers: []Matcher{TypeMatcher{Type: dog}}})
	if err == nil {
		t.Fatal("an exact duplicate matcher tuple should be rejected")
	}
}

func TestAddMethodKeepsSpecificFirst(t *testing.T) {
	_, animal, dog := dispatchFixture(t)
	mm := NewMultiMethod("speak", 1)

	// Register least specific first; the sort must still put Dog ahead.
	general := &Method{Matchers: []Matcher{AnyMatcher{}}}
	mid := &Method{Matchers: []Matcher{TypeMatcher{Type: animal}}}
	specific := &Method{Matchers: []Matcher{TypeMatcher{Type: dog}}}
	for _, m := range []*Method{general, mid, specific} {
		if err := mm.AddMethod(m); err != nil {
			t.Fatal(err)
		}
	}

	got := mm.Methods()
	want := []*Method{specific, mid, general}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("methods[%d] out of order", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

func TestSelectMostSpecific(t *testing.T) {
	rt, animal, dog := dispatchFixture(t)
	pup, err := rt.DefineDataclass("Pup", []*Type{dog}, nil)
	if err != nil {
		t.Fatal(err)
	}

	mm := NewMultiMethod("speak", 1)
	dogMethod := named("dog")
	dogMethod.Matchers = []Matcher{TypeMatcher{Type: dog}}
	animalMethod := named("animal")
	animalMethod.Matchers = []Matcher{TypeMatcher{Type: animal}}
	for _, m := range []*Method{animalMethod, dogMethod} {
		if err := mm.AddMethod(m); err != nil {
			t.Fatal(err)
		}
	}

	m, cond := mm.Select(rt, []Value{&Instance{Type: pup}})
	if cond != nil {
		t.Fatalf("unexpected condition: %s", cond.Message)
	}
	if got := methodName(t, rt, m, []Value{Null{}}); got != "dog" {
		t.Errorf("selected %s, want dog", got)
	}
}

func TestSelectValueBeatsType(t *testing.T) {
	rt := NewRuntime()
	mm := NewMultiMethod("fib:", 2)

	base := named("base")
	base.Matchers = []Matcher{AnyMatcher{}, ValueMatcher{Literal: Number(0)}}
	general := named("general")
	general.Matchers = []Matcher{AnyMatcher{}, TypeMatcher{Type: rt.Core.Number}}
	for _, m := range []*Method{general, base} {
		if err := mm.AddMethod(m); err != nil {
			t.Fatal(err)
		}
	}

	m, cond := mm.Select(rt, []Value{Null{}, Number(0)})
	if cond != nil {
		t.Fatalf("unexpected condition: %s", cond.Message)
	}
	if got := methodName(t, rt, m, []Value{Null{}}); got != "base" {
		t.Errorf("selected %s, want the value-matched base case", got)
	}

	m, cond = mm.Select(rt, []Value{Null{}, Number(5)})
	if cond != nil {
		t.Fatalf("unexpected condition: %s", cond.Message)
	}
	if got := methodName(t, rt, m, []Value{Null{}}); got != "general" {
		t.Errorf("selected %s, want the general case", got)
	}
}

func TestSelectNoMatch(t *testing.T) {
	rt, _, dog := dispatchFixture(t)
	mm := NewMultiMethod("speak", 1)
	if err := mm.AddMethod(&Method{Matchers: []Matcher{TypeMatcher{Type: dog}}}); err != nil {
		t.Fatal(err)
	}
	_, cond := mm.Select(rt, []Value{Number(1)})
	if cond == nil || cond.Name != CondNoMatchingMethod {
		t.Fatalf("want %s, got %+v", CondNoMatchingMethod, cond)
	}
}

func TestSelectAmbiguous(t *testing.T) {
	rt := NewRuntime()
	mm := NewMultiMethod("f:", 2)

	// (Number, Any) and (Any, Number) are incomparable: both register fine,
	// but a (Number, Number) call cannot pick between them.
	left := &Method{Matchers: []Matcher{TypeMatcher{Type: rt.Core.Number}, AnyMatcher{}}}
	right := &Method{Matchers: []Matcher{AnyMatcher{}, TypeMatcher{Type: rt.Core.Number}}}
	for _, m := range []*Method{left, right} {
		if err := mm.AddMethod(m); err != nil {
			t.Fatalf("incomparable methods must both register: %v", err)
		}
	}

	_, cond := mm.Select(rt, []Value{Number(1), Number(2)})
	if cond == nil || cond.Name != CondAmbiguousMethod {
		t.Fatalf("want %s, got %+v", CondAmbiguousMethod, cond)
	}

	// Off the overlap each method is reachable.
	if m, cond := mm.Select(rt, []Value{Number(1), String("s")}); cond != nil || m != left {
		t.Error("(Number, String) should select the left method")
	}
	if m, cond := mm.Select(rt, []Value{String("s"), Number(1)}); cond != nil || m != right {
		t.Error("(String, Number) should select the right method")
	}
}

func TestSelectDeterministicAcrossRegistrationOrder(t *testing.T) {
	rt, animal, dog := dispatchFixture(t)

	build := func(order []*Method) *MultiMethod {
		mm := NewMultiMethod("speak", 1)
		for _, m := range order {
			if err := mm.AddMethod(m); err != nil {
				t.Fatal(err)
			}
		}
		return mm
	}
	a := &Method{Matchers: []Matcher{TypeMatcher{Type: dog}}}
	b := &Method{Matchers: []Matcher{TypeMatcher{Type: animal}}}
	c := &Method{Matchers: []Matcher{AnyMatcher{}}}

	inst := &Instance{Type: dog}
	for _, order := range [][]*Method{{a, b, c}, {c, b, a}, {b, a, c}, {c, a, b}} {
		m, cond := build(order).Select(rt, []Value{inst})
		if cond != nil {
			t.Fatalf("unexpected condition: %s", cond.Message)
		}
		if m != a {
			t.Error("selection should not depend on registration order")
		}
	}
}

// ---------------------------------------------------------------------------
// Invalidation
// ---------------------------------------------------------------------------

func TestAddMethodInvalidatesDependents(t *testing.T) {
	mm := NewMultiMethod("speak", 1)
	if err := mm.AddMethod(&Method{Matchers: []Matcher{AnyMatcher{}}}); err != nil {
		t.Fatal(err)
	}

	code := &Code{Name: "<test>"}
	mm.addDependent(code)
	if code.Stale() {
		t.Fatal("fresh code should not be stale")
	}
	if err := mm.AddMethod(&Method{Matchers: []Matcher{ValueMatcher{Literal: Number(0)}}}); err != nil {
		t.Fatal(err)
	}
	if !code.Stale() {
		t.Error("registering a method should invalidate dependent code")
	}
}

func TestDispatchSiteCache(t *testing.T) {
	rt := NewRuntime()
	mm := NewMultiMethod("speak", 1)
	method := &Method{Matchers: []Matcher{TypeMatcher{Type: rt.Core.Number}}}
	if err := mm.AddMethod(method); err != nil {
		t.Fatal(err)
	}

	code := &Code{Name: "<test>", Insts: []Inst{{Op: OpInvoke, Name: "speak", N: 1}}}
	site := code.siteFor(&code.Insts[0])
	types := []*Type{rt.Core.Number}

	if _, ok := site.lookup(mm, types, 0); ok {
		t.Fatal("empty site should miss")
	}
	site.record(code, mm, types, method, 0)
	got, ok := site.lookup(mm, types, 0)
	if !ok || got != method {
		t.Fatal("recorded site should hit for the same type tuple")
	}
	if _, ok := site.lookup(mm, []*Type{rt.Core.String}, 0); ok {
		t.Fatal("site should miss for a different type tuple")
	}
	if _, ok := site.lookup(mm, types, 1); ok {
		t.Fatal("site should miss after the type epoch moves on")
	}

	// Redefinition invalidates the site through the dependent code.
	if err := mm.AddMethod(&Method{Matchers: []Matcher{AnyMatcher{}}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := site.lookup(mm, types, 0); ok {
		t.Fatal("invalidated site should miss")
	}
}

func TestExtendTypeInvalidatesDispatchSites(t *testing.T) {
	rt := newTestRuntime(t)
	tagged, err := rt.DefineMixin("Tagged", nil)
	if err != nil {
		t.Fatal(err)
	}
	box, err := rt.DefineDataclass("Box", nil, []string{"v"})
	if err != nil {
		t.Fatal(err)
	}
	reg := func(matcher Matcher, result string) {
		err := rt.DefineNative(rt.Root, "tag", []Matcher{matcher},
			func(_ *Context, _ Value, _ []Value) (Value, error) {
				return String(result), nil
			})
		if err != nil {
			t.Fatal(err)
		}
	}
	reg(AnyMatcher{}, "plain")
	reg(TypeMatcher{Type: tagged}, "tagged")

	defineBodyMethod(t, rt, "check:", []string{"self", "x"}, "x tag")
	if err := rt.Root.Define("b", &Instance{Type: box, Slots: []Value{Number(1)}}); err != nil {
		t.Fatal(err)
	}

	// The first call through the compiled body caches the catch-all overload
	// for Box arguments.
	if v := evalOK(t, rt, "check: b"); v != String("plain") {
		t.Fatalf("before extension: got %s, want plain", v)
	}

	// Extending Box makes the Tagged overload strictly more specific for the
	// same argument type; the cached decision must not survive.
	if err := rt.ExtendType(box, []*Type{tagged}); err != nil {
		t.Fatal(err)
	}
	if v := evalOK(t, rt, "check: b"); v != String("tagged") {
		t.Errorf("after extension: got %s, want tagged", v)
	}
}
