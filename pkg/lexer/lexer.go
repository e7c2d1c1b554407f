// Package lexer turns source text into a token stream.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/vireo/pkg/ast"
)

// Type classifies a token.
type Type int

const (
	TEOF Type = iota
	TNewline
	TName      // plain identifier: foo, slot-a, call/cc
	TMessage   // keyword selector part: foo:
	TSymbol    // symbol literal: :foo
	TOperator  // operator run: + - * / = != < <= ~ ...
	TNumber    // integer literal
	TString    // double-quoted string literal
	TLParen
	TRParen
	TLCurly
	TRCurly
	TLSquare
	TRSquare
	TBackslash
	TComma
	TSemicolon
)

var typeNames = map[Type]string{
	TEOF:       "eof",
	TNewline:   "newline",
	TName:      "name",
	TMessage:   "message",
	TSymbol:    "symbol",
	TOperator:  "operator",
	TNumber:    "number",
	TString:    "string",
	TLParen:    "'('",
	TRParen:    "')'",
	TLCurly:    "'{'",
	TRCurly:    "'}'",
	TLSquare:   "'['",
	TRSquare:   "']'",
	TBackslash: "'\\'",
	TComma:     "','",
	TSemicolon: "';'",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Token is one lexed token. Text holds the identifier, selector (without
// the trailing colon), symbol name, operator, or string contents; Num holds
// the value of a TNumber token.
type Token struct {
	Type Type
	Text string
	Num  int64
	Span ast.Span
}

func (t Token) String() string {
	switch t.Type {
	case TNumber:
		return fmt.Sprintf("%d", t.Num)
	case TName, TOperator:
		return t.Text
	case TMessage:
		return t.Text + ":"
	case TSymbol:
		return ":" + t.Text
	case TString:
		return strconv.Quote(t.Text)
	default:
		return t.Type.String()
	}
}

// Error is a tokenization failure at a source location.
type Error struct {
	Msg  string
	Span ast.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span.Start, e.Msg)
}

const operatorChars = "~!@#$%^&*-+=|<>/?"

func isOperatorChar(c byte) bool {
	return strings.IndexByte(operatorChars, c) >= 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Names may continue with a few operator-ish characters so identifiers like
// slot-a, empty?, panic! and call/cc lex as single words.
func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c) ||
		c == '-' || c == '!' || c == '?' || c == '/' || c == '*'
}

type lexer struct {
	src    string
	pos    int
	line   int
	column int
}

func (l *lexer) at() ast.Position {
	return ast.Position{Offset: l.pos, Line: l.line, Column: l.column}
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return c
}

func (l *lexer) span(start ast.Position) ast.Span {
	return ast.Span{Start: start, End: l.at()}
}

// Tokenize lexes the whole source buffer, ending with a TEOF token.
func Tokenize(src string) ([]Token, error) {
	l := &lexer{src: src, line: 1, column: 1}
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (Token, error) {
	l.skipBlank()
	start := l.at()
	if l.pos >= len(l.src) {
		return Token{Type: TEOF, Span: l.span(start)}, nil
	}

	c := l.peek()
	switch {
	case c == '\n':
		l.advance()
		return Token{Type: TNewline, Span: l.span(start)}, nil
	case c == '(':
		l.advance()
		return Token{Type: TLParen, Span: l.span(start)}, nil
	case c == ')':
		l.advance()
		return Token{Type: TRParen, Span: l.span(start)}, nil
	case c == '{':
		l.advance()
		return Token{Type: TLCurly, Span: l.span(start)}, nil
	case c == '}':
		l.advance()
		return Token{Type: TRCurly, Span: l.span(start)}, nil
	case c == '[':
		l.advance()
		return Token{Type: TLSquare, Span: l.span(start)}, nil
	case c == ']':
		l.advance()
		return Token{Type: TRSquare, Span: l.span(start)}, nil
	case c == '\\':
		l.advance()
		return Token{Type: TBackslash, Span: l.span(start)}, nil
	case c == ',':
		l.advance()
		return Token{Type: TComma, Span: l.span(start)}, nil
	case c == ';':
		l.advance()
		return Token{Type: TSemicolon, Span: l.span(start)}, nil
	case c == '"':
		return l.lexString(start)
	case isDigit(c):
		return l.lexNumber(start)
	case c == ':' && isNameStart(l.peekAt(1)):
		l.advance()
		name := l.lexWord()
		return Token{Type: TSymbol, Text: name, Span: l.span(start)}, nil
	case isNameStart(c):
		name := l.lexWord()
		if l.peek() == ':' {
			l.advance()
			return Token{Type: TMessage, Text: name, Span: l.span(start)}, nil
		}
		return Token{Type: TName, Text: name, Span: l.span(start)}, nil
	case isOperatorChar(c):
		var b strings.Builder
		for l.pos < len(l.src) && isOperatorChar(l.peek()) {
			b.WriteByte(l.advance())
		}
		return Token{Type: TOperator, Text: b.String(), Span: l.span(start)}, nil
	}
	l.advance()
	return Token{}, &Error{Msg: fmt.Sprintf("unexpected character %q", c), Span: l.span(start)}
}

// skipBlank consumes spaces, tabs, carriage returns, and comments.
// Newlines are significant (they separate statements) and are not skipped.
func (l *lexer) skipBlank() {
	for l.pos < len(l.src) {
		switch l.peek() {
		case ' ', '\t', '\r':
			l.advance()
		case '#':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) lexWord() string {
	var b strings.Builder
	for l.pos < len(l.src) && isNameChar(l.peek()) {
		b.WriteByte(l.advance())
	}
	return b.String()
}

func (l *lexer) lexNumber(start ast.Position) (Token, error) {
	var b strings.Builder
	for l.pos < len(l.src) && isDigit(l.peek()) {
		b.WriteByte(l.advance())
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return Token{}, &Error{Msg: fmt.Sprintf("number out of range: %s", b.String()), Span: l.span(start)}
	}
	return Token{Type: TNumber, Num: n, Span: l.span(start)}, nil
}

func (l *lexer) lexString(start ast.Position) (Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) || l.peek() == '\n' {
			return Token{}, &Error{Msg: "unterminated string literal", Span: l.span(start)}
		}
		c := l.advance()
		if c == '"' {
			return Token{Type: TString, Text: b.String(), Span: l.span(start)}, nil
		}
		if c == '\\' {
			if l.pos >= len(l.src) {
				return Token{}, &Error{Msg: "unterminated string literal", Span: l.span(start)}
			}
			switch e := l.advance(); e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"':
				b.WriteByte(e)
			default:
				return Token{}, &Error{Msg: fmt.Sprintf("unknown escape \\%c", e), Span: l.span(start)}
			}
			continue
		}
		b.WriteByte(c)
	}
}
