package vm

import (
	"fmt"

	"github.com/chazu/vireo/pkg/ast"
)

// CompileError is a lowering failure, reported synchronously to whoever
// requested compilation.
type CompileError struct {
	Msg string
	Loc ast.Span
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Loc.Start, e.Msg)
}

// Selectors the compiler lowers specially: their declaration argument is
// passed unevaluated, as a quote, instead of being evaluated like an
// ordinary argument.
const (
	selLocalIs    = "local:is:"
	selSetTo      = "set:to:"
	selMethodDoes = "method:does:"
	selDataHas    = "data:has:"
	selDataFrom   = "data:from:has:"
)

// CompileToplevel lowers one top-level expression.
func CompileToplevel(expr ast.Expr) (*Code, error) {
	c := &compiler{code: &Code{Name: "<toplevel>", Loc: expr.Span()}, declared: map[string]bool{}}
	if err := c.compile(expr); err != nil {
		return nil, err
	}
	c.markTail()
	return c.code, nil
}

// compileQuoteBody lowers a quote's body. The quote's parameters count as
// locally declared names, so they lower to direct slot reads.
func compileQuoteBody(q *Quote, name string) (*Code, error) {
	c := &compiler{code: &Code{Name: name, Loc: q.Loc}, declared: map[string]bool{}}
	for _, p := range q.Params {
		c.declared[p] = true
	}
	if q.Body == nil {
		c.emit(Inst{Op: OpLoadValue, Val: Null{}, Loc: q.Loc})
	} else if err := c.compile(q.Body); err != nil {
		return nil, err
	}
	c.markTail()
	return c.code, nil
}

type compiler struct {
	code *Code

	// declared tracks names bound by local:is: (and parameters) earlier in
	// this body, which lower to direct slot reads instead of message sends.
	declared map[string]bool
}

func (c *compiler) emit(inst Inst) {
	c.code.Insts = append(c.code.Insts, inst)
}

// markTail rewrites a final invoke into its tail form. The VM still falls
// back to a plain call when the frame cannot be elided.
func (c *compiler) markTail() {
	if n := len(c.code.Insts); n > 0 && c.code.Insts[n-1].Op == OpInvoke {
		c.code.Insts[n-1].Op = OpTailInvoke
	}
}

func (c *compiler) compile(expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.Literal:
		return c.compileLiteral(e)
	case *ast.Name:
		if c.declared[e.Name] {
			c.emit(Inst{Op: OpGetSlot, Name: e.Name, Loc: e.Loc})
			return nil
		}
		// A bare name is a nullary message to the default receiver.
		c.emit(Inst{Op: OpLoadReceiver, Loc: e.Loc})
		c.emit(Inst{Op: OpInvoke, Name: e.Name, N: 1, Loc: e.Loc})
		return nil
	case *ast.Paren:
		return c.compile(e.Inner)
	case *ast.Sequence:
		for i, part := range e.Parts {
			if err := c.compile(part); err != nil {
				return err
			}
			if i < len(e.Parts)-1 {
				c.emit(Inst{Op: OpDrop, Loc: part.Span()})
			}
		}
		return nil
	case *ast.UnaryOp:
		// A prefix operator is a keyword message whose receiver is its
		// operand: `- x` sends "-:" to x.
		if err := c.compile(e.Arg); err != nil {
			return err
		}
		c.emit(Inst{Op: OpInvoke, Name: e.Op + ":", N: 1, Loc: e.Loc})
		return nil
	case *ast.BinaryOp:
		if err := c.compile(e.Left); err != nil {
			return err
		}
		if err := c.compile(e.Right); err != nil {
			return err
		}
		c.emit(Inst{Op: OpInvoke, Name: e.Op, N: 2, Loc: e.Loc})
		return nil
	case *ast.UnaryMessage:
		if err := c.compile(e.Target); err != nil {
			return err
		}
		c.emit(Inst{Op: OpInvoke, Name: e.Selector, N: 1, Loc: e.Loc})
		return nil
	case *ast.NAryMessage:
		return c.compileNAry(e)
	case *ast.Quote:
		c.emit(Inst{
			Op:       OpMakeQuote,
			Template: &QuoteTemplate{Params: e.Params, Body: e.Body, Loc: e.Loc},
			Loc:      e.Loc,
		})
		return nil
	case *ast.VectorLit:
		for _, comp := range e.Components {
			if err := c.compile(comp); err != nil {
				return err
			}
		}
		c.emit(Inst{Op: OpMakeVector, N: len(e.Components), Loc: e.Loc})
		return nil
	case *ast.TupleLit:
		for _, comp := range e.Components {
			if err := c.compile(comp); err != nil {
				return err
			}
		}
		c.emit(Inst{Op: OpMakeTuple, N: len(e.Components), Loc: e.Loc})
		return nil
	}
	return &CompileError{Msg: fmt.Sprintf("cannot compile %T", expr), Loc: expr.Span()}
}

func (c *compiler) compileLiteral(e *ast.Literal) error {
	var v Value
	switch e.Kind {
	case ast.LiteralNumber:
		v = Number(e.Num)
	case ast.LiteralString:
		v = String(e.Str)
	case ast.LiteralSymbol:
		v = Symbol(e.Str)
	default:
		return &CompileError{Msg: "unknown literal kind", Loc: e.Loc}
	}
	c.emit(Inst{Op: OpLoadValue, Val: v, Loc: e.Loc})
	return nil
}

func (c *compiler) compileNAry(e *ast.NAryMessage) error {
	selector := e.Selector()
	if e.Target == nil {
		switch selector {
		case selLocalIs:
			return c.compileLocal(e)
		case selSetTo:
			return c.compileSet(e)
		case selMethodDoes, selDataHas, selDataFrom:
			return c.compileDeclForm(e, selector)
		}
	}

	if e.Target != nil {
		if err := c.compile(e.Target); err != nil {
			return err
		}
	} else {
		c.emit(Inst{Op: OpLoadReceiver, Loc: e.Loc})
	}
	for _, arg := range e.Args {
		if err := c.compile(arg); err != nil {
			return err
		}
	}
	c.emit(Inst{Op: OpInvoke, Name: selector, N: 1 + len(e.Args), Loc: e.Loc})
	return nil
}

// compileLocal lowers `local: x is: v`: the value stays on the stack as the
// expression's result, and x becomes a directly-read slot for the rest of
// this body.
func (c *compiler) compileLocal(e *ast.NAryMessage) error {
	name, ok := declName(e.Args[0])
	if !ok {
		return &CompileError{Msg: "local: expects a name to declare", Loc: e.Args[0].Span()}
	}
	if err := c.compile(e.Args[1]); err != nil {
		return err
	}
	c.emit(Inst{Op: OpCreateSlot, Name: name, Loc: e.Loc})
	c.declared[name] = true
	return nil
}

func (c *compiler) compileSet(e *ast.NAryMessage) error {
	name, ok := declName(e.Args[0])
	if !ok {
		return &CompileError{Msg: "set: expects a name to assign", Loc: e.Args[0].Span()}
	}
	if err := c.compile(e.Args[1]); err != nil {
		return err
	}
	c.emit(Inst{Op: OpSetSlot, Name: name, Loc: e.Loc})
	return nil
}

// compileDeclForm lowers definition forms whose first argument is a
// declaration shape, not a value: it is wrapped in a quote so the registered
// handler can inspect it unevaluated.
func (c *compiler) compileDeclForm(e *ast.NAryMessage, selector string) error {
	c.emit(Inst{Op: OpLoadReceiver, Loc: e.Loc})
	c.emit(Inst{
		Op:       OpMakeQuote,
		Template: &QuoteTemplate{Body: e.Args[0], Loc: e.Args[0].Span()},
		Loc:      e.Args[0].Span(),
	})
	for _, arg := range e.Args[1:] {
		if err := c.compile(arg); err != nil {
			return err
		}
	}
	c.emit(Inst{Op: OpInvoke, Name: selector, N: 1 + len(e.Args), Loc: e.Loc})
	return nil
}

func declName(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.Name:
		return e.Name, true
	case *ast.Paren:
		return declName(e.Inner)
	}
	return "", false
}
