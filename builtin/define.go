package builtin

import (
	"fmt"

	"github.com/chazu/vireo/pkg/ast"
	"github.com/chazu/vireo/vm"
)

// The definition forms receive their declaration argument as a quote: the
// compiler wraps it unevaluated, since the names being declared are not
// bound yet. The handlers here take those quotes apart.

func registerDefinitionForms(rt *vm.Runtime) error {
	quote := vm.TypeMatcher{Type: rt.Core.Quote}
	any := vm.AnyMatcher{}

	err := rt.DefineNative(rt.Root, "method:does:", []vm.Matcher{any, quote, quote},
		func(ctx *vm.Context, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return defineMethod(rt, ctx, args[0].(*vm.Quote), args[1].(*vm.Quote))
		})
	if err != nil {
		return err
	}

	err = rt.DefineNative(rt.Root, "data:has:", []vm.Matcher{any, quote, any},
		func(ctx *vm.Context, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return defineDataclass(rt, ctx, args[0].(*vm.Quote), nil, args[1])
		})
	if err != nil {
		return err
	}

	return rt.DefineNative(rt.Root, "data:from:has:", []vm.Matcher{any, quote, any, any},
		func(ctx *vm.Context, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return defineDataclass(rt, ctx, args[0].(*vm.Quote), args[1], args[2])
		})
}

// defineMethod registers `method: <decl> does: <body>`. The declaration
// mirrors a send of the method being defined: a bare name, a unary or
// keyword message, or an operator application. Each parameter is a bare
// name (matches anything) or `(name: Matcher)` where the matcher expression
// is a type name or a literal.
func defineMethod(rt *vm.Runtime, ctx *vm.Context, decl, body *vm.Quote) (vm.Value, error) {
	selector, params, matchers, err := parseMethodDecl(rt, ctx, decl.Body)
	if err != nil {
		return nil, err
	}
	methodQuote := &vm.Quote{
		Params: params,
		Body:   body.Body,
		Ctx:    body.Ctx,
		Loc:    body.Loc,
		Name:   selector,
	}
	if err := rt.DefineMethod(ctx, selector, matchers, methodQuote); err != nil {
		return nil, err
	}
	return vm.Symbol(selector), nil
}

func parseMethodDecl(rt *vm.Runtime, ctx *vm.Context, decl ast.Expr) (string, []string, []vm.Matcher, error) {
	decl = unwrap(decl)
	switch d := decl.(type) {
	case *ast.Name:
		return d.Name, []string{"self"}, []vm.Matcher{vm.AnyMatcher{}}, nil
	case *ast.UnaryMessage:
		name, matcher, err := parseParam(rt, ctx, d.Target)
		if err != nil {
			return "", nil, nil, err
		}
		return d.Selector, []string{name}, []vm.Matcher{matcher}, nil
	case *ast.UnaryOp:
		name, matcher, err := parseParam(rt, ctx, d.Arg)
		if err != nil {
			return "", nil, nil, err
		}
		return d.Op + ":", []string{name}, []vm.Matcher{matcher}, nil
	case *ast.BinaryOp:
		lname, lmatcher, err := parseParam(rt, ctx, d.Left)
		if err != nil {
			return "", nil, nil, err
		}
		rname, rmatcher, err := parseParam(rt, ctx, d.Right)
		if err != nil {
			return "", nil, nil, err
		}
		return d.Op, []string{lname, rname}, []vm.Matcher{lmatcher, rmatcher}, nil
	case *ast.NAryMessage:
		params := []string{"self"}
		matchers := []vm.Matcher{vm.AnyMatcher{}}
		if d.Target != nil {
			name, matcher, err := parseParam(rt, ctx, d.Target)
			if err != nil {
				return "", nil, nil, err
			}
			params[0], matchers[0] = name, matcher
		}
		for _, arg := range d.Args {
			name, matcher, err := parseParam(rt, ctx, arg)
			if err != nil {
				return "", nil, nil, err
			}
			params = append(params, name)
			matchers = append(matchers, matcher)
		}
		return d.Selector(), params, matchers, nil
	}
	return "", nil, nil, fmt.Errorf("cannot read a method declaration from %s", decl)
}

// parseParam reads one parameter spec: `name` or `(name: Matcher)`.
func parseParam(rt *vm.Runtime, ctx *vm.Context, expr ast.Expr) (string, vm.Matcher, error) {
	expr = unwrap(expr)
	switch p := expr.(type) {
	case *ast.Name:
		return p.Name, vm.AnyMatcher{}, nil
	case *ast.NAryMessage:
		if p.Target == nil && len(p.Selectors) == 1 {
			matcher, err := parseMatcher(rt, ctx, p.Args[0])
			if err != nil {
				return "", nil, err
			}
			return p.Selectors[0], matcher, nil
		}
	}
	return "", nil, fmt.Errorf("cannot read a parameter from %s", expr)
}

// parseMatcher resolves a matcher expression at definition time: a name
// bound to a type becomes a type matcher, any other bound name or literal
// becomes a value matcher.
func parseMatcher(rt *vm.Runtime, ctx *vm.Context, expr ast.Expr) (vm.Matcher, error) {
	expr = unwrap(expr)
	switch e := expr.(type) {
	case *ast.Name:
		v, ok := ctx.Lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("matcher name %q is not bound", e.Name)
		}
		if t, isType := v.(*vm.Type); isType {
			return vm.TypeMatcher{Type: t}, nil
		}
		return vm.ValueMatcher{Literal: v}, nil
	case *ast.Literal:
		switch e.Kind {
		case ast.LiteralNumber:
			return vm.ValueMatcher{Literal: vm.Number(e.Num)}, nil
		case ast.LiteralString:
			return vm.ValueMatcher{Literal: vm.String(e.Str)}, nil
		default:
			return vm.ValueMatcher{Literal: vm.Symbol(e.Str)}, nil
		}
	}
	return nil, fmt.Errorf("cannot read a matcher from %s", expr)
}

// defineDataclass registers `data: <name> has: (<slots>)` and the from:
// variant with explicit bases. Slots are given as symbols.
func defineDataclass(rt *vm.Runtime, _ *vm.Context, decl *vm.Quote, basesVal, slotsVal vm.Value) (vm.Value, error) {
	nameExpr, ok := unwrap(decl.Body).(*ast.Name)
	if !ok {
		return nil, fmt.Errorf("data: expects a type name to declare")
	}
	var bases []*vm.Type
	if basesVal != nil {
		var err error
		bases, err = typeList(basesVal)
		if err != nil {
			return nil, err
		}
	}
	slots, err := slotNames(slotsVal)
	if err != nil {
		return nil, err
	}
	t, err := rt.DefineDataclass(nameExpr.Name, bases, slots)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func slotNames(v vm.Value) ([]string, error) {
	var components []vm.Value
	switch val := v.(type) {
	case *vm.Tuple:
		components = val.Components
	case *vm.Vector:
		components = val.Components
	case vm.Symbol:
		components = []vm.Value{val}
	default:
		return nil, fmt.Errorf("slots must be a tuple of symbols, got %s", v)
	}
	slots := make([]string, len(components))
	for i, c := range components {
		sym, ok := c.(vm.Symbol)
		if !ok {
			return nil, fmt.Errorf("slot names must be symbols, got %s", c)
		}
		slots[i] = string(sym)
	}
	return slots, nil
}

func unwrap(expr ast.Expr) ast.Expr {
	for {
		p, ok := expr.(*ast.Paren)
		if !ok {
			return expr
		}
		expr = p.Inner
	}
}
