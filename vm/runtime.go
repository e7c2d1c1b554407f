package vm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/vireo/pkg/ast"
)

// DefaultMaxFrames bounds call-stack depth. Tail-recursive loops do not
// approach it; runaway non-tail recursion hits it and fails fatally instead
// of exhausting memory.
const DefaultMaxFrames = 10000

// CoreTypes holds the built-in type objects. Every Runtime owns its own set;
// there is no process-wide registry.
type CoreTypes struct {
	Number             *Type
	String             *Type
	Bool               *Type
	Null               *Type
	Symbol             *Type
	Tuple              *Type
	Vector             *Type
	Quote              *Type
	Continuation       *Type
	ReturnContinuation *Type
	Type               *Type
	MultiMethod        *Type
	Context            *Type
}

// Runtime owns a root context, the core type objects, and the configuration
// shared by every evaluation it runs.
type Runtime struct {
	Core CoreTypes
	Root *Context

	// Stdout receives print: output.
	Stdout io.Writer

	// Trace enables per-instruction debug logging.
	Trace bool

	// MaxFrames bounds the call stack; zero means DefaultMaxFrames.
	MaxFrames int

	Log commonlog.Logger

	// typeEpoch counts committed type extensions. Dispatch-site caches
	// record the epoch they were filled at and miss once it moves on.
	typeEpoch uint64
}

// NewRuntime creates a runtime with its core types bound in a fresh root
// context. The builtin library registers everything else on top.
func NewRuntime() *Runtime {
	rt := &Runtime{
		Root:      NewContext(nil),
		Stdout:    os.Stdout,
		MaxFrames: DefaultMaxFrames,
		Log:       commonlog.GetLogger("vireo.runtime"),
	}
	rt.installCoreTypes()
	return rt
}

func (rt *Runtime) installCoreTypes() {
	mustType := func(name string, sealed bool) *Type {
		t, err := NewType(name, nil, sealed)
		if err != nil {
			panic(err) // no bases, cannot fail
		}
		if err := rt.Root.Define(name, t); err != nil {
			panic(err)
		}
		return t
	}
	rt.Core = CoreTypes{
		Number:             mustType("Number", false),
		String:             mustType("String", false),
		Bool:               mustType("Bool", true),
		Null:               mustType("Null", true),
		Symbol:             mustType("Symbol", false),
		Tuple:              mustType("Tuple", false),
		Vector:             mustType("Vector", false),
		Quote:              mustType("Quote", true),
		Continuation:       mustType("Continuation", true),
		ReturnContinuation: mustType("ReturnContinuation", true),
		Type:               mustType("Type", true),
		MultiMethod:        mustType("MultiMethod", true),
		Context:            mustType("Context", true),
	}
}

// TypeOf maps a value to its type. Dataclass instances report their own
// type; every other variant maps to its core type.
func (rt *Runtime) TypeOf(v Value) *Type {
	switch val := v.(type) {
	case Number:
		return rt.Core.Number
	case String:
		return rt.Core.String
	case Bool:
		return rt.Core.Bool
	case Null:
		return rt.Core.Null
	case Symbol:
		return rt.Core.Symbol
	case *Tuple:
		return rt.Core.Tuple
	case *Vector:
		return rt.Core.Vector
	case *Quote:
		return rt.Core.Quote
	case *Continuation:
		return rt.Core.Continuation
	case *ReturnContinuation:
		return rt.Core.ReturnContinuation
	case *Type:
		return rt.Core.Type
	case *Instance:
		return val.Type
	case *MultiMethod:
		return rt.Core.MultiMethod
	case *ContextValue:
		return rt.Core.Context
	}
	return rt.Core.Null
}

// ensureMultiMethod resolves a selector to its multimethod, creating and
// binding one in ctx when the name is unbound. A name bound to anything else
// is a definition error.
func (rt *Runtime) ensureMultiMethod(ctx *Context, selector string, arity int) (*MultiMethod, error) {
	if existing, ok := ctx.Lookup(selector); ok {
		mm, isMM := existing.(*MultiMethod)
		if !isMM {
			return nil, fmt.Errorf("%q is already bound to a non-method value", selector)
		}
		if mm.Arity != arity {
			return nil, fmt.Errorf("%q takes %d arguments, not %d", selector, mm.Arity, arity)
		}
		return mm, nil
	}
	mm := NewMultiMethod(selector, arity)
	if err := ctx.Define(selector, mm); err != nil {
		return nil, err
	}
	return mm, nil
}

// DefineNative registers a host-native method on a selector.
func (rt *Runtime) DefineNative(ctx *Context, selector string, matchers []Matcher, fn NativeFunc) error {
	mm, err := rt.ensureMultiMethod(ctx, selector, len(matchers))
	if err != nil {
		return err
	}
	if err := mm.AddMethod(&Method{Matchers: matchers, Native: fn}); err != nil {
		return err
	}
	rt.Log.Debugf("registered native %s (%s)", selector, matcherTupleString(matchers))
	return nil
}

// DefineIntrinsic registers an intrinsic method on a selector.
func (rt *Runtime) DefineIntrinsic(ctx *Context, selector string, matchers []Matcher, fn IntrinsicFunc) error {
	mm, err := rt.ensureMultiMethod(ctx, selector, len(matchers))
	if err != nil {
		return err
	}
	if err := mm.AddMethod(&Method{Matchers: matchers, Intrinsic: fn}); err != nil {
		return err
	}
	rt.Log.Debugf("registered intrinsic %s (%s)", selector, matcherTupleString(matchers))
	return nil
}

// DefineMethod registers a bytecode-bodied method. The quote's parameters
// must already include the receiver name.
func (rt *Runtime) DefineMethod(ctx *Context, selector string, matchers []Matcher, body *Quote) error {
	if len(body.Params) != len(matchers) {
		return fmt.Errorf("method %s: %d parameters for %d matchers", selector, len(body.Params), len(matchers))
	}
	mm, err := rt.ensureMultiMethod(ctx, selector, len(matchers))
	if err != nil {
		return err
	}
	if err := mm.AddMethod(&Method{Matchers: matchers, Quote: body}); err != nil {
		return err
	}
	rt.Log.Debugf("registered method %s (%s)", selector, matcherTupleString(matchers))
	return nil
}

// DefineType creates a primitive type and binds it in the root context.
func (rt *Runtime) DefineType(name string, bases []*Type, sealed bool) (*Type, error) {
	t, err := NewType(name, bases, sealed)
	if err != nil {
		return nil, err
	}
	if err := rt.Root.Define(name, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DefineMixin creates a mixin type and binds it in the root context.
func (rt *Runtime) DefineMixin(name string, bases []*Type) (*Type, error) {
	t, err := NewMixin(name, bases)
	if err != nil {
		return nil, err
	}
	if err := rt.Root.Define(name, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DefineDataclass creates a dataclass type, binds it in the root context,
// and registers its constructor plus a getter and setter per own slot.
//
// The constructor is a keyword message over the cumulative slot layout sent
// to the type itself: `Point x: 1 y: 2`. A slotless dataclass constructs via
// `new`. Getters are unary slot-name messages; setters are `set-<slot>:`.
func (rt *Runtime) DefineDataclass(name string, bases []*Type, slotNames []string) (*Type, error) {
	t, err := NewDataclass(name, bases, slotNames)
	if err != nil {
		return nil, err
	}
	if err := rt.Root.Define(name, t); err != nil {
		return nil, err
	}

	layout := t.SlotLayout()
	ctorSelector := "new"
	if len(layout) > 0 {
		ctorSelector = strings.Join(layout, ":") + ":"
	}
	ctorMatchers := make([]Matcher, 1+len(layout))
	ctorMatchers[0] = ValueMatcher{Literal: t}
	for i := 1; i < len(ctorMatchers); i++ {
		ctorMatchers[i] = AnyMatcher{}
	}
	err = rt.DefineNative(rt.Root, ctorSelector, ctorMatchers, func(_ *Context, _ Value, args []Value) (Value, error) {
		return &Instance{Type: t, Slots: append([]Value(nil), args...)}, nil
	})
	if err != nil {
		return nil, err
	}

	base := len(layout) - len(slotNames)
	for i, slot := range slotNames {
		idx := base + i
		err = rt.DefineNative(rt.Root, slot, []Matcher{TypeMatcher{Type: t}}, func(_ *Context, recv Value, _ []Value) (Value, error) {
			return recv.(*Instance).Slots[idx], nil
		})
		if err != nil {
			return nil, err
		}
		err = rt.DefineNative(rt.Root, "set-"+slot+":", []Matcher{TypeMatcher{Type: t}, AnyMatcher{}}, func(_ *Context, recv Value, args []Value) (Value, error) {
			recv.(*Instance).Slots[idx] = args[0]
			return args[0], nil
		})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ExtendType appends new bases to an existing type and invalidates every
// type-keyed dispatch cache in this runtime. The new ancestry can make a
// more specific overload applicable to argument types a call site has
// already selected for, so cached winners must not survive the extension.
func (rt *Runtime) ExtendType(t *Type, newBases []*Type) error {
	if err := ExtendType(t, newBases); err != nil {
		return err
	}
	rt.typeEpoch++
	rt.Log.Debugf("extended %s; dispatch caches invalidated", t.Name)
	return nil
}

// EvalToplevel compiles and runs one top-level expression to completion in
// the given context (the root context when ctx is nil). It returns the
// expression's value, a *RunError on fatal failure, or a *PanicError when
// evaluation ended in panic!:.
func (rt *Runtime) EvalToplevel(expr ast.Expr, ctx *Context) (Value, error) {
	if ctx == nil {
		ctx = rt.Root
	}
	code, err := CompileToplevel(expr)
	if err != nil {
		return nil, err
	}
	m := newVM(rt)
	return m.run(code, ctx)
}
