// Package vm implements the Vireo runtime: the value and type model, the
// multimethod dispatch engine, the bytecode compiler, and the virtual
// machine with its continuation, cleanup, and condition-signaling machinery.
package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/vireo/pkg/ast"
)

// Kind discriminates the closed set of runtime value variants.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
	KindNull
	KindSymbol
	KindTuple
	KindVector
	KindQuote
	KindContinuation
	KindReturnContinuation
	KindType
	KindInstance
	KindMultiMethod
	KindContext
)

var kindNames = map[Kind]string{
	KindNumber:             "number",
	KindString:             "string",
	KindBool:               "bool",
	KindNull:               "null",
	KindSymbol:             "symbol",
	KindTuple:              "tuple",
	KindVector:             "vector",
	KindQuote:              "quote",
	KindContinuation:       "continuation",
	KindReturnContinuation: "return-continuation",
	KindType:               "type",
	KindInstance:           "instance",
	KindMultiMethod:        "multimethod",
	KindContext:            "context",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a runtime value. The set of implementations is closed; consumers
// switch on Kind rather than type-asserting blindly.
type Value interface {
	Kind() Kind
	String() string
}

// Number is a signed integer.
type Number int64

// String is an immutable character sequence.
type String string

// Bool is a boolean.
type Bool bool

// Null is the unit value.
type Null struct{}

// Symbol is an interned-style name literal, written :name.
type Symbol string

// Tuple is an immutable ordered sequence with value semantics: two tuples
// are equal when their components are pairwise equal.
type Tuple struct {
	Components []Value
}

// Vector is a mutable ordered sequence with reference semantics.
type Vector struct {
	Components []Value
}

// Quote is a closure: parameter names, an unlowered body, and the context
// captured where the quote was evaluated. The body is compiled lazily on
// first invocation so quotes may reference names defined after them.
type Quote struct {
	Params []string
	Body   ast.Expr // nil for an empty quote
	Ctx    *Context
	Loc    ast.Span
	Name   string // display name for traces; empty for anonymous quotes

	code *Code // cached compiled body
}

// compiled returns the quote's lazily compiled body, recompiling when a
// multimethod redefinition has invalidated the cached code.
func (v *Quote) compiled() (*Code, error) {
	if v.code == nil || v.code.stale {
		name := v.Name
		if name == "" {
			name = "<quote>"
		}
		code, err := compileQuoteBody(v, name)
		if err != nil {
			return nil, err
		}
		v.code = code
	}
	return v.code, nil
}

// Instance is a dataclass instance: its type plus one mutable slot value
// per cumulative slot name.
type Instance struct {
	Type  *Type
	Slots []Value
}

// ContextValue makes a lexical context first-class, as passed to signal
// handlers.
type ContextValue struct {
	Ctx *Context
}

func (Number) Kind() Kind        { return KindNumber }
func (String) Kind() Kind        { return KindString }
func (Bool) Kind() Kind          { return KindBool }
func (Null) Kind() Kind          { return KindNull }
func (Symbol) Kind() Kind        { return KindSymbol }
func (*Tuple) Kind() Kind        { return KindTuple }
func (*Vector) Kind() Kind       { return KindVector }
func (*Quote) Kind() Kind        { return KindQuote }
func (*Instance) Kind() Kind     { return KindInstance }
func (*ContextValue) Kind() Kind { return KindContext }

func (v Number) String() string { return strconv.FormatInt(int64(v), 10) }
func (v String) String() string { return strconv.Quote(string(v)) }

func (v Bool) String() string {
	if v {
		return "t"
	}
	return "f"
}

func (Null) String() string { return "null" }

func (v Symbol) String() string { return ":" + string(v) }

func (v *Tuple) String() string {
	parts := make([]string, len(v.Components))
	for i, c := range v.Components {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (v *Vector) String() string {
	parts := make([]string, len(v.Components))
	for i, c := range v.Components {
		parts[i] = c.String()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

func (v *Quote) String() string {
	if len(v.Params) == 0 {
		return "[...]"
	}
	return "\\" + strings.Join(v.Params, " ") + " [...]"
}

func (v *Instance) String() string {
	parts := make([]string, len(v.Slots))
	for i, s := range v.Slots {
		parts[i] = s.String()
	}
	return v.Type.Name + "(" + strings.Join(parts, ", ") + ")"
}

func (v *ContextValue) String() string { return "<context>" }

// DisplayString renders a value for program output: strings appear without
// quotes, everything else as its printed form.
func DisplayString(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return v.String()
}

// Truthy reports whether a value counts as true in a conditional position:
// only Bool true does.
func Truthy(v Value) bool {
	b, ok := v.(Bool)
	return ok && bool(b)
}

// Equal compares two values. Number, String, Bool, Null, Symbol, and Tuple
// compare structurally; everything else compares by identity.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Number:
		return av == b.(Number)
	case String:
		return av == b.(String)
	case Bool:
		return av == b.(Bool)
	case Null:
		return true
	case Symbol:
		return av == b.(Symbol)
	case *Tuple:
		bv := b.(*Tuple)
		if len(av.Components) != len(bv.Components) {
			return false
		}
		for i := range av.Components {
			if !Equal(av.Components[i], bv.Components[i]) {
				return false
			}
		}
		return true
	case *Vector:
		return av == b.(*Vector)
	case *Quote:
		return av == b.(*Quote)
	case *Continuation:
		return av == b.(*Continuation)
	case *ReturnContinuation:
		return av == b.(*ReturnContinuation)
	case *Type:
		return av == b.(*Type)
	case *Instance:
		return av == b.(*Instance)
	case *MultiMethod:
		return av == b.(*MultiMethod)
	case *ContextValue:
		return av.Ctx == b.(*ContextValue).Ctx
	}
	return false
}
