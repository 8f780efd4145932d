// Package expr implements the small arithmetic formula language used by
// calculated form fields: + - * / ( ), numeric literals, and field
// identifiers resolved against the current value map at evaluation time.
// Formulas are parsed into an AST and interpreted; no user-authored text
// is ever executed as code.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"unicode"
)

// ErrDivisionByZero is returned when a division's right side evaluates
// to zero.
var ErrDivisionByZero = errors.New("division by zero")

// Resolver maps a field identifier to its current numeric value. A
// resolver should return (0, nil) for identifiers it does not know and
// an error for values that exist but are not numeric.
type Resolver func(name string) (float64, error)

// Node is a parsed formula that can be evaluated repeatedly against
// different resolvers.
type Node interface {
	Eval(resolve Resolver) (float64, error)
}

type numberNode float64

func (n numberNode) Eval(Resolver) (float64, error) { return float64(n), nil }

type identNode string

func (n identNode) Eval(resolve Resolver) (float64, error) {
	if resolve == nil {
		return 0, fmt.Errorf("no resolver for identifier %q", string(n))
	}
	return resolve(string(n))
}

type unaryNode struct {
	op    rune
	child Node
}

func (n unaryNode) Eval(resolve Resolver) (float64, error) {
	v, err := n.child.Eval(resolve)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

type binaryNode struct {
	op          rune
	left, right Node
}

func (n binaryNode) Eval(resolve Resolver) (float64, error) {
	l, err := n.left.Eval(resolve)
	if err != nil {
		return 0, err
	}
	r, err := n.right.Eval(resolve)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return l / r, nil
	}
	return 0, fmt.Errorf("unknown operator %q", n.op)
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp    // + - * /
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{tokOp, string(c), i})
			i++
		case unicode.IsDigit(c) || c == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", text, start)
			}
			toks = append(toks, token{tokNumber, text, start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{tokIdent, string(runes[start:i]), start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(runes)})
	return toks, nil
}

// parser is a standard recursive-descent parser over the token stream:
//
//	expression := term (('+' | '-') term)*
//	term       := factor (('*' | '/') factor)*
//	factor     := ('-' | '+') factor | number | ident | '(' expression ')'
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpression() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: rune(t.text[0]), left: left, right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: rune(t.text[0]), left: left, right: right}
	}
}

func (p *parser) parseFactor() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokOp:
		if t.text == "-" || t.text == "+" {
			child, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return unaryNode{op: rune(t.text[0]), child: child}, nil
		}
		return nil, fmt.Errorf("unexpected operator %q at position %d", t.text, t.pos)
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return numberNode(v), nil
	case tokIdent:
		return identNode(t.text), nil
	case tokLParen:
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of formula")
	}
	return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
}

// Parse compiles a formula into an AST.
func Parse(src string) (Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if trailing := p.peek(); trailing.kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", trailing.text, trailing.pos)
	}
	return node, nil
}

// Eval parses and evaluates a formula in one step.
func Eval(src string, resolve Resolver) (float64, error) {
	node, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return node.Eval(resolve)
}
