// Package parser builds expression trees from the token stream.
//
// It is a Pratt parser: each token type has a prefix rule, an infix rule,
// or both, and infix rules carry a binding precedence.
package parser

import (
	"fmt"

	"github.com/chazu/vireo/pkg/ast"
	"github.com/chazu/vireo/pkg/lexer"
)

// ParseError is a syntax error at a source location. It is fatal to the
// statement being parsed but not to the driver, which resumes at the next
// statement.
type ParseError struct {
	Msg  string
	Span ast.Span
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Span.Start, e.Msg)
}

// Binding precedences, loosest first. An infix rule fires only when its
// precedence exceeds the level the caller is parsing at.
const (
	precSequencing = 10
	precTuple      = 15
	precEquality   = 20
	precComparison = 30
	precNAryMsg    = 50
	precSum        = 100
	precDivision   = 110
	precProduct    = 120
	precPrefix     = 500
	precUnaryMsg   = 1000
)

type opRule struct {
	prec       int
	rightAssoc bool
}

var operatorRules = map[string]opRule{
	"=":  {precEquality, true},
	"!=": {precEquality, false},
	"<":  {precComparison, false},
	"<=": {precComparison, false},
	">":  {precComparison, false},
	">=": {precComparison, false},
	"+":  {precSum, false},
	"-":  {precSum, false},
	"~":  {precSum, false},
	"/":  {precDivision, false},
	"%":  {precDivision, false},
	"*":  {precProduct, false},
}

// Parse tokenizes and parses one top-level expression, which must consume
// the whole buffer. Multiple statements parse as a Sequence.
func Parse(src string) (ast.Expr, error) {
	tokens, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	p.skipNewlines()
	if p.peek().Type == lexer.TEOF {
		return nil, &ParseError{Msg: "empty input", Span: p.peek().Span}
	}
	expr, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if tok := p.peek(); tok.Type != lexer.TEOF {
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected %s after expression", tok), Span: tok.Span}
	}
	return expr, nil
}

type parser struct {
	tokens []lexer.Token
	pos    int
}

func (p *parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // TEOF
	}
	return p.tokens[p.pos]
}

func (p *parser) consume() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) expect(t lexer.Type) (lexer.Token, error) {
	tok := p.peek()
	if tok.Type != t {
		return tok, &ParseError{Msg: fmt.Sprintf("expected %s, got %s", t, tok), Span: tok.Span}
	}
	return p.consume(), nil
}

func (p *parser) skipNewlines() {
	for p.peek().Type == lexer.TNewline {
		p.consume()
	}
}

func (p *parser) parse(precedence int) (ast.Expr, error) {
	p.skipNewlines()
	tok := p.consume()
	if tok.Type == lexer.TEOF {
		return nil, &ParseError{Msg: "unexpected end of input", Span: tok.Span}
	}

	left, err := p.parsePrefix(tok)
	if err != nil {
		return nil, err
	}

	for p.infixPrecedence(p.peek()) > precedence {
		tok = p.consume()
		left, err = p.parseInfix(left, tok)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) infixPrecedence(tok lexer.Token) int {
	switch tok.Type {
	case lexer.TName:
		return precUnaryMsg
	case lexer.TMessage:
		return precNAryMsg
	case lexer.TOperator:
		if rule, ok := operatorRules[tok.Text]; ok {
			return rule.prec
		}
		return 0
	case lexer.TComma:
		return precTuple
	case lexer.TSemicolon, lexer.TNewline:
		return precSequencing
	default:
		return 0
	}
}

func (p *parser) parsePrefix(tok lexer.Token) (ast.Expr, error) {
	switch tok.Type {
	case lexer.TName:
		return &ast.Name{Loc: tok.Span, Name: tok.Text}, nil
	case lexer.TNumber:
		return &ast.Literal{Loc: tok.Span, Kind: ast.LiteralNumber, Num: tok.Num}, nil
	case lexer.TString:
		return &ast.Literal{Loc: tok.Span, Kind: ast.LiteralString, Str: tok.Text}, nil
	case lexer.TSymbol:
		return &ast.Literal{Loc: tok.Span, Kind: ast.LiteralSymbol, Str: tok.Text}, nil
	case lexer.TOperator:
		arg, err := p.parse(precPrefix)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Loc: ast.Combine(tok.Span, arg.Span()), Op: tok.Text, Arg: arg}, nil
	case lexer.TMessage:
		return p.parseKeywordMessage(nil, tok)
	case lexer.TLParen:
		return p.parseParen(tok)
	case lexer.TLCurly:
		return p.parseVector(tok)
	case lexer.TLSquare:
		return p.parseQuoteBody(tok, nil)
	case lexer.TBackslash:
		return p.parseParamQuote(tok)
	default:
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected %s", tok), Span: tok.Span}
	}
}

func (p *parser) parseInfix(left ast.Expr, tok lexer.Token) (ast.Expr, error) {
	switch tok.Type {
	case lexer.TName:
		return &ast.UnaryMessage{
			Loc:      ast.Combine(left.Span(), tok.Span),
			Target:   left,
			Selector: tok.Text,
		}, nil
	case lexer.TMessage:
		return p.parseKeywordMessage(left, tok)
	case lexer.TOperator:
		rule, ok := operatorRules[tok.Text]
		if !ok {
			return nil, &ParseError{Msg: fmt.Sprintf("operator %q has no infix rule", tok.Text), Span: tok.Span}
		}
		prec := rule.prec
		if rule.rightAssoc {
			prec--
		}
		right, err := p.parse(prec)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{
			Loc:   ast.Combine(left.Span(), tok.Span, right.Span()),
			Op:    tok.Text,
			Left:  left,
			Right: right,
		}, nil
	case lexer.TComma:
		return p.parseTuple(left)
	case lexer.TSemicolon, lexer.TNewline:
		return p.parseSequence(left)
	default:
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected %s", tok), Span: tok.Span}
	}
}

func (p *parser) parseKeywordMessage(target ast.Expr, first lexer.Token) (ast.Expr, error) {
	selectors := []string{first.Text}
	spans := []ast.Span{first.Span}
	if target != nil {
		spans = append(spans, target.Span())
	}

	arg, err := p.parse(precNAryMsg + 1)
	if err != nil {
		return nil, err
	}
	args := []ast.Expr{arg}
	spans = append(spans, arg.Span())

	for p.peek().Type == lexer.TMessage {
		tok := p.consume()
		selectors = append(selectors, tok.Text)
		spans = append(spans, tok.Span)
		arg, err = p.parse(precNAryMsg + 1)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		spans = append(spans, arg.Span())
	}
	return &ast.NAryMessage{
		Loc:       ast.Combine(spans...),
		Target:    target,
		Selectors: selectors,
		Args:      args,
	}, nil
}

func (p *parser) parseParen(open lexer.Token) (ast.Expr, error) {
	p.skipNewlines()
	if p.peek().Type == lexer.TRParen {
		closing := p.consume()
		return &ast.TupleLit{Loc: ast.Combine(open.Span, closing.Span)}, nil
	}
	inner, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	closing, err := p.expect(lexer.TRParen)
	if err != nil {
		return nil, err
	}
	span := ast.Combine(open.Span, inner.Span(), closing.Span)
	if tuple, ok := inner.(*ast.TupleLit); ok {
		tuple.Loc = span
		return tuple, nil
	}
	return &ast.Paren{Loc: span, Inner: inner}, nil
}

func (p *parser) parseVector(open lexer.Token) (ast.Expr, error) {
	p.skipNewlines()
	if p.peek().Type == lexer.TRCurly {
		closing := p.consume()
		return &ast.VectorLit{Loc: ast.Combine(open.Span, closing.Span)}, nil
	}
	inner, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	closing, err := p.expect(lexer.TRCurly)
	if err != nil {
		return nil, err
	}
	components := []ast.Expr{inner}
	if seq, ok := inner.(*ast.Sequence); ok {
		components = seq.Parts
	}
	return &ast.VectorLit{Loc: ast.Combine(open.Span, closing.Span), Components: components}, nil
}

func (p *parser) parseQuoteBody(open lexer.Token, params []string) (ast.Expr, error) {
	p.skipNewlines()
	if p.peek().Type == lexer.TRSquare {
		closing := p.consume()
		return &ast.Quote{Loc: ast.Combine(open.Span, closing.Span), Params: params}, nil
	}
	body, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	closing, err := p.expect(lexer.TRSquare)
	if err != nil {
		return nil, err
	}
	return &ast.Quote{
		Loc:    ast.Combine(open.Span, body.Span(), closing.Span),
		Params: params,
		Body:   body,
	}, nil
}

func (p *parser) parseParamQuote(slash lexer.Token) (ast.Expr, error) {
	var params []string
	for p.peek().Type == lexer.TName {
		params = append(params, p.consume().Text)
	}
	if len(params) == 0 {
		return nil, &ParseError{Msg: "expected parameter names after '\\'", Span: slash.Span}
	}
	open, err := p.expect(lexer.TLSquare)
	if err != nil {
		return nil, err
	}
	quote, err := p.parseQuoteBody(open, params)
	if err != nil {
		return nil, err
	}
	q := quote.(*ast.Quote)
	q.Loc = ast.Combine(slash.Span, q.Loc)
	return q, nil
}

// parseTuple consumes the whole comma run at once, so a parenthesized tuple
// on the left stays a nested component instead of merging into its parent.
func (p *parser) parseTuple(left ast.Expr) (ast.Expr, error) {
	components := []ast.Expr{left}
	for {
		next, err := p.parse(precTuple)
		if err != nil {
			return nil, err
		}
		components = append(components, next)
		if p.peek().Type != lexer.TComma {
			break
		}
		p.consume()
	}
	spans := make([]ast.Span, len(components))
	for i, c := range components {
		spans[i] = c.Span()
	}
	return &ast.TupleLit{Loc: ast.Combine(spans...), Components: components}, nil
}

func (p *parser) parseSequence(left ast.Expr) (ast.Expr, error) {
	parts := []ast.Expr{left}
	spans := []ast.Span{left.Span()}

	parseNext := func() error {
		p.skipNewlines()
		// Tolerate a trailing separator before a closer.
		switch p.peek().Type {
		case lexer.TRParen, lexer.TRCurly, lexer.TRSquare, lexer.TEOF:
			return nil
		}
		part, err := p.parse(precSequencing + 1)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		spans = append(spans, part.Span())
		return nil
	}

	if err := parseNext(); err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.TSemicolon || p.peek().Type == lexer.TNewline {
		p.consume()
		if err := parseNext(); err != nil {
			return nil, err
		}
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return &ast.Sequence{Loc: ast.Combine(spans...), Parts: parts}, nil
}
