package vm

import (
	"fmt"
	"strings"
)

// Matcher tests one argument position of a method. The three kinds are
// ordered by specificity: ValueMatcher > TypeMatcher > AnyMatcher.
type Matcher interface {
	Matches(rt *Runtime, v Value) bool
	String() string
}

// AnyMatcher matches every value.
type AnyMatcher struct{}

// TypeMatcher matches values whose type is a subtype of Type.
type TypeMatcher struct {
	Type *Type
}

// ValueMatcher matches values equal to one literal.
type ValueMatcher struct {
	Literal Value
}

func (AnyMatcher) Matches(*Runtime, Value) bool { return true }

func (m TypeMatcher) Matches(rt *Runtime, v Value) bool {
	return IsSubtype(rt.TypeOf(v), m.Type)
}

func (m ValueMatcher) Matches(_ *Runtime, v Value) bool {
	return Equal(m.Literal, v)
}

func (AnyMatcher) String() string     { return "_" }
func (m TypeMatcher) String() string  { return m.Type.Name }
func (m ValueMatcher) String() string { return "=" + m.Literal.String() }

// matcherLE reports whether a is at least as specific as b.
func matcherLE(a, b Matcher) bool {
	switch am := a.(type) {
	case ValueMatcher:
		if bm, ok := b.(ValueMatcher); ok {
			return Equal(am.Literal, bm.Literal)
		}
		return true
	case TypeMatcher:
		switch bm := b.(type) {
		case ValueMatcher:
			return false
		case TypeMatcher:
			return IsSubtype(am.Type, bm.Type)
		default:
			return true
		}
	default: // AnyMatcher
		_, ok := b.(AnyMatcher)
		return ok
	}
}

func matcherEqual(a, b Matcher) bool {
	switch am := a.(type) {
	case ValueMatcher:
		bm, ok := b.(ValueMatcher)
		return ok && Equal(am.Literal, bm.Literal)
	case TypeMatcher:
		bm, ok := b.(TypeMatcher)
		return ok && am.Type == bm.Type
	default:
		_, ok := b.(AnyMatcher)
		return ok
	}
}

// NativeFunc is a host-implemented method body. Faults (returned errors or
// panics) are caught at the call boundary and become internal-error
// conditions.
type NativeFunc func(ctx *Context, receiver Value, args []Value) (Value, error)

// IntrinsicFunc is a host handler with direct VM access, used for control
// primitives that push frames or rewrite the frame stack.
type IntrinsicFunc func(m *VM, tail bool, args []Value) error

// Method is one overload of a multimethod: a matcher per parameter (the
// first is the receiver) and exactly one body kind.
type Method struct {
	Matchers  []Matcher
	Quote     *Quote        // bytecode body
	Native    NativeFunc    // host-native body
	Intrinsic IntrinsicFunc // intrinsic body
}

func (m *Method) matches(rt *Runtime, args []Value) bool {
	for i, matcher := range m.Matchers {
		if !matcher.Matches(rt, args[i]) {
			return false
		}
	}
	return true
}

// methodLE is the pointwise specificity order over methods of one arity.
func methodLE(a, b *Method) bool {
	for i := range a.Matchers {
		if !matcherLE(a.Matchers[i], b.Matchers[i]) {
			return false
		}
	}
	return true
}

// MultiMethod is a selector's full overload set, kept sorted so a more
// specific method never appears after a less specific one. It also tracks
// the compiled bodies that inlined dispatch decisions over the current
// method set, so redefinition can invalidate them.
type MultiMethod struct {
	Name  string
	Arity int

	methods          []*Method
	hasValueMatchers bool
	dependents       map[*Code]struct{}
}

// NewMultiMethod creates an empty multimethod for a selector of the given
// arity (receiver included).
func NewMultiMethod(name string, arity int) *MultiMethod {
	return &MultiMethod{Name: name, Arity: arity, dependents: map[*Code]struct{}{}}
}

func (mm *MultiMethod) Kind() Kind { return KindMultiMethod }

func (mm *MultiMethod) String() string {
	return fmt.Sprintf("<multimethod %s/%d>", mm.Name, mm.Arity)
}

// Methods returns the overloads in specificity-sorted order.
func (mm *MultiMethod) Methods() []*Method { return mm.methods }

// AddMethod registers an overload. Exact duplicates of an existing matcher
// tuple are rejected; the new method is inserted before the first existing
// method it is at least as specific as. Every dependent compiled body is
// invalidated.
func (mm *MultiMethod) AddMethod(m *Method) error {
	if len(m.Matchers) != mm.Arity {
		return fmt.Errorf("multimethod %s expects %d matchers, got %d", mm.Name, mm.Arity, len(m.Matchers))
	}
	for _, existing := range mm.methods {
		dup := true
		for i := range existing.Matchers {
			if !matcherEqual(existing.Matchers[i], m.Matchers[i]) {
				dup = false
				break
			}
		}
		if dup {
			return fmt.Errorf("multimethod %s already has a method matching (%s)", mm.Name, matcherTupleString(m.Matchers))
		}
	}

	at := len(mm.methods)
	for i, existing := range mm.methods {
		if methodLE(m, existing) {
			at = i
			break
		}
	}
	mm.methods = append(mm.methods, nil)
	copy(mm.methods[at+1:], mm.methods[at:])
	mm.methods[at] = m

	for _, matcher := range m.Matchers {
		if _, ok := matcher.(ValueMatcher); ok {
			mm.hasValueMatchers = true
		}
	}
	mm.invalidateDependents()
	return nil
}

// Select picks the unique most specific matching overload. The sorted list
// is only a topological approximation of the partial order, so the earliest
// candidate must still be verified against every other candidate.
func (mm *MultiMethod) Select(rt *Runtime, args []Value) (*Method, *Condition) {
	var candidates []*Method
	for _, m := range mm.methods {
		if m.matches(rt, args) {
			candidates = append(candidates, m)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, &Condition{
			Name:    CondNoMatchingMethod,
			Message: fmt.Sprintf("multimethod %s has no methods matching the given arguments", mm.Name),
		}
	case 1:
		return candidates[0], nil
	}
	best := candidates[0]
	for _, other := range candidates[1:] {
		if !methodLE(best, other) {
			return nil, &Condition{
				Name:    CondAmbiguousMethod,
				Message: fmt.Sprintf("multimethod %s has multiple best methods matching the given arguments", mm.Name),
			}
		}
	}
	return best, nil
}

func (mm *MultiMethod) addDependent(code *Code) {
	mm.dependents[code] = struct{}{}
}

func (mm *MultiMethod) invalidateDependents() {
	for code := range mm.dependents {
		code.invalidate()
	}
	mm.dependents = map[*Code]struct{}{}
}

func matcherTupleString(matchers []Matcher) string {
	parts := make([]string, len(matchers))
	for i, m := range matchers {
		parts[i] = m.String()
	}
	return strings.Join(parts, ", ")
}
