// Package condition evaluates the restricted boolean expressions used by
// rule tables. The grammar is deliberately closed: identifier ==/!= literal,
// combined with && and || and parentheses. Conditions come from
// configuration data that may later be loaded from less-trusted sources, so
// this is a dedicated tokenizer and recursive-descent parser, not a general
// expression facility. A condition that fails to parse, references an
// undeclared key, or compares mismatched types evaluates to false and is
// recorded as a diagnostic; the evaluator never returns an error and never
// panics.
package condition

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// Context is the flat key→value snapshot rules are evaluated against. Only
// keys that were explicitly set are legal identifiers.
type Context struct {
	values map[string]value
}

type valueKind int

const (
	kindString valueKind = iota
	kindNumber
)

type value struct {
	kind valueKind
	s    string
	n    float64
}

func NewContext() *Context {
	return &Context{values: make(map[string]value)}
}

func (c *Context) SetString(key, v string) *Context {
	c.values[key] = value{kind: kindString, s: v}
	return c
}

func (c *Context) SetNumber(key string, v float64) *Context {
	c.values[key] = value{kind: kindNumber, n: v}
	return c
}

// Diagnostic records one condition that could not be evaluated.
type Diagnostic struct {
	Condition string
	Reason    string
}

// Evaluator evaluates conditions and accumulates diagnostics for the ones
// that fail. Not safe for concurrent use; each pipeline run builds its own.
type Evaluator struct {
	logger    *slog.Logger
	onFailure func()
	diags     []Diagnostic
}

// New builds an evaluator. onFailure may be nil; when set it is invoked once
// per failed condition (used to bump the failure metric).
func New(logger *slog.Logger, onFailure func()) *Evaluator {
	return &Evaluator{logger: logger, onFailure: onFailure}
}

// Diagnostics returns the accumulated failures in occurrence order.
func (e *Evaluator) Diagnostics() []Diagnostic {
	return e.diags
}

// Eval evaluates cond against ctx. Any failure yields false.
func (e *Evaluator) Eval(cond string, ctx *Context) bool {
	p := &parser{tokens: lex(cond), ctx: ctx}
	result, err := p.parseExpr()
	if err == nil && !p.atEnd() {
		err = fmt.Errorf("unexpected trailing input at %q", p.rest())
	}
	if err != nil {
		e.fail(cond, err)
		return false
	}
	return result
}

func (e *Evaluator) fail(cond string, err error) {
	e.diags = append(e.diags, Diagnostic{Condition: cond, Reason: err.Error()})
	if e.logger != nil {
		e.logger.Warn("condition evaluation failed", "condition", cond, "error", err)
	}
	if e.onFailure != nil {
		e.onFailure()
	}
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokLParen
	tokRParen
	tokError
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) []token {
	var tokens []token
	i := 0
	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case strings.HasPrefix(input[i:], "=="):
			tokens = append(tokens, token{tokEq, "=="})
			i += 2
		case strings.HasPrefix(input[i:], "!="):
			tokens = append(tokens, token{tokNeq, "!="})
			i += 2
		case strings.HasPrefix(input[i:], "&&"):
			tokens = append(tokens, token{tokAnd, "&&"})
			i += 2
		case strings.HasPrefix(input[i:], "||"):
			tokens = append(tokens, token{tokOr, "||"})
			i += 2
		case ch == '"' || ch == '\'':
			quote := ch
			j := i + 1
			for j < len(input) && input[j] != quote {
				j++
			}
			if j >= len(input) {
				return append(tokens, token{tokError, "unterminated string literal"})
			}
			tokens = append(tokens, token{tokString, input[i+1 : j]})
			i = j + 1
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, input[i:j]})
			i = j
		case isIdentStart(rune(ch)):
			j := i
			for j < len(input) && isIdentPart(rune(input[j])) {
				j++
			}
			tokens = append(tokens, token{tokIdent, input[i:j]})
			i = j
		default:
			return append(tokens, token{tokError, fmt.Sprintf("unexpected character %q", ch)})
		}
	}
	return tokens
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// --- parser / evaluator ---

// Grammar:
//
//	expr := and ("||" and)*
//	and  := cmp ("&&" cmp)*
//	cmp  := "(" expr ")" | IDENT ("=="|"!=") literal
type parser struct {
	tokens []token
	pos    int
	ctx    *Context
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() (token, bool) {
	if p.atEnd() {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func (p *parser) rest() string {
	var parts []string
	for _, t := range p.tokens[p.pos:] {
		parts = append(parts, t.text)
	}
	return strings.Join(parts, " ")
}

func (p *parser) parseExpr() (bool, error) {
	result, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		// No short-circuit: the right side must still be well-formed.
		result = result || rhs
	}
}

func (p *parser) parseAnd() (bool, error) {
	result, err := p.parseCmp()
	if err != nil {
		return false, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokAnd {
			return result, nil
		}
		p.pos++
		rhs, err := p.parseCmp()
		if err != nil {
			return false, err
		}
		result = result && rhs
	}
}

func (p *parser) parseCmp() (bool, error) {
	tok, ok := p.next()
	if !ok {
		return false, fmt.Errorf("unexpected end of condition")
	}
	switch tok.kind {
	case tokError:
		return false, fmt.Errorf("%s", tok.text)
	case tokLParen:
		result, err := p.parseExpr()
		if err != nil {
			return false, err
		}
		closing, ok := p.next()
		if !ok || closing.kind != tokRParen {
			return false, fmt.Errorf("missing closing parenthesis")
		}
		return result, nil
	case tokIdent:
		lhs, ok := p.ctx.values[tok.text]
		if !ok {
			return false, fmt.Errorf("unknown identifier %q", tok.text)
		}
		op, ok := p.next()
		if !ok || (op.kind != tokEq && op.kind != tokNeq) {
			return false, fmt.Errorf("expected == or != after %q", tok.text)
		}
		lit, ok := p.next()
		if !ok {
			return false, fmt.Errorf("expected literal after %s", op.text)
		}
		equal, err := compare(lhs, lit)
		if err != nil {
			return false, err
		}
		if op.kind == tokNeq {
			return !equal, nil
		}
		return equal, nil
	default:
		return false, fmt.Errorf("unexpected token %q", tok.text)
	}
}

func compare(lhs value, lit token) (bool, error) {
	switch lit.kind {
	case tokString:
		if lhs.kind != kindString {
			return false, fmt.Errorf("cannot compare numeric field with string literal %q", lit.text)
		}
		return lhs.s == lit.text, nil
	case tokNumber:
		n, err := strconv.ParseFloat(lit.text, 64)
		if err != nil {
			return false, fmt.Errorf("invalid numeric literal %q", lit.text)
		}
		if lhs.kind != kindNumber {
			return false, fmt.Errorf("cannot compare string field with numeric literal %q", lit.text)
		}
		return lhs.n == n, nil
	case tokError:
		return false, fmt.Errorf("%s", lit.text)
	default:
		return false, fmt.Errorf("expected string or number literal, got %q", lit.text)
	}
}
