// Package ast defines the expression nodes produced by the parser and
// consumed by the bytecode compiler.
//
// The node set is closed: every expression is one of the types below, and
// consumers switch exhaustively over them.
package ast

import (
	"fmt"
	"strings"
)

// Position is a location in a source buffer.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open [Start, End) region of a source buffer.
type Span struct {
	Start Position
	End   Position
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// Combine returns the smallest span covering all the given spans.
func Combine(spans ...Span) Span {
	if len(spans) == 0 {
		return Span{}
	}
	out := spans[0]
	for _, sp := range spans[1:] {
		if sp.Start.Offset < out.Start.Offset {
			out.Start = sp.Start
		}
		if sp.End.Offset > out.End.Offset {
			out.End = sp.End
		}
	}
	return out
}

// Expr is an expression node.
type Expr interface {
	Span() Span
	String() string
	expr()
}

// LiteralKind discriminates Literal payloads.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralSymbol
)

// Literal is a number, string, or symbol literal.
type Literal struct {
	Loc  Span
	Kind LiteralKind
	Num  int64  // valid when Kind == LiteralNumber
	Str  string // valid when Kind == LiteralString or LiteralSymbol
}

// Name is a bare identifier reference.
type Name struct {
	Loc  Span
	Name string
}

// UnaryOp is a prefix operator application, e.g. `-x` or `not x`.
type UnaryOp struct {
	Loc Span
	Op  string
	Arg Expr
}

// BinaryOp is an infix operator application, e.g. `a + b`.
type BinaryOp struct {
	Loc   Span
	Op    string
	Left  Expr
	Right Expr
}

// UnaryMessage is a selector sent to a target with no arguments,
// e.g. `v size`.
type UnaryMessage struct {
	Loc      Span
	Target   Expr
	Selector string
}

// NAryMessage is a keyword message. Target is nil when the receiver is
// elided, e.g. `print: x`. Selectors and Args are parallel; the full
// selector is the colon-joined concatenation of Selectors.
type NAryMessage struct {
	Loc       Span
	Target    Expr // may be nil
	Selectors []string
	Args      []Expr
}

// Selector returns the combined keyword selector, e.g. "at:put:".
func (e *NAryMessage) Selector() string {
	return strings.Join(e.Selectors, ":") + ":"
}

// Paren is a parenthesized expression.
type Paren struct {
	Loc   Span
	Inner Expr
}

// Quote is a block literal: an unevaluated body with optional parameter
// names, closing over the context it is evaluated in.
type Quote struct {
	Loc    Span
	Params []string
	Body   Expr
}

// VectorLit is a `{ a; b; c }` literal.
type VectorLit struct {
	Loc        Span
	Components []Expr
}

// TupleLit is a `(a, b, c)` literal. `()` is the empty tuple.
type TupleLit struct {
	Loc        Span
	Components []Expr
}

// Sequence is two or more expressions separated by semicolons or newlines;
// its value is the value of the last part.
type Sequence struct {
	Loc   Span
	Parts []Expr
}

func (e *Literal) Span() Span      { return e.Loc }
func (e *Name) Span() Span         { return e.Loc }
func (e *UnaryOp) Span() Span      { return e.Loc }
func (e *BinaryOp) Span() Span     { return e.Loc }
func (e *UnaryMessage) Span() Span { return e.Loc }
func (e *NAryMessage) Span() Span  { return e.Loc }
func (e *Paren) Span() Span        { return e.Loc }
func (e *Quote) Span() Span        { return e.Loc }
func (e *VectorLit) Span() Span    { return e.Loc }
func (e *TupleLit) Span() Span     { return e.Loc }
func (e *Sequence) Span() Span     { return e.Loc }

func (e *Literal) expr()      {}
func (e *Name) expr()         {}
func (e *UnaryOp) expr()      {}
func (e *BinaryOp) expr()     {}
func (e *UnaryMessage) expr() {}
func (e *NAryMessage) expr()  {}
func (e *Paren) expr()        {}
func (e *Quote) expr()        {}
func (e *VectorLit) expr()    {}
func (e *TupleLit) expr()     {}
func (e *Sequence) expr()     {}

func (e *Literal) String() string {
	switch e.Kind {
	case LiteralNumber:
		return fmt.Sprintf("%d", e.Num)
	case LiteralString:
		return fmt.Sprintf("%q", e.Str)
	default:
		return ":" + e.Str
	}
}

func (e *Name) String() string { return e.Name }

func (e *UnaryOp) String() string {
	return fmt.Sprintf("(%s %s)", e.Op, e.Arg)
}

func (e *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *UnaryMessage) String() string {
	return fmt.Sprintf("(%s %s)", e.Target, e.Selector)
}

func (e *NAryMessage) String() string {
	var b strings.Builder
	b.WriteByte('(')
	if e.Target != nil {
		fmt.Fprintf(&b, "%s ", e.Target)
	}
	for i, sel := range e.Selectors {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s: %s", sel, e.Args[i])
	}
	b.WriteByte(')')
	return b.String()
}

func (e *Paren) String() string { return e.Inner.String() }

func (e *Quote) String() string {
	var b strings.Builder
	if len(e.Params) > 0 {
		b.WriteByte('\\')
		for _, p := range e.Params {
			b.WriteString(p)
			b.WriteByte(' ')
		}
	}
	if e.Body == nil {
		b.WriteString("[]")
	} else {
		fmt.Fprintf(&b, "[%s]", e.Body)
	}
	return b.String()
}

func (e *VectorLit) String() string {
	parts := make([]string, len(e.Components))
	for i, c := range e.Components {
		parts[i] = c.String()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

func (e *TupleLit) String() string {
	parts := make([]string, len(e.Components))
	for i, c := range e.Components {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (e *Sequence) String() string {
	parts := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}
