package expr

import (
	"fmt"
	"strconv"
)

// node is an AST node of a compiled expression.
type node interface {
	eval(env Env) (any, error)
}

type literalNode struct {
	value any
}

type identNode struct {
	path string
}

type listNode struct {
	elements []node
}

type callNode struct {
	name string
	args []node
}

type unaryNode struct {
	op      string // "not", "-"
	operand node
}

type binaryNode struct {
	op          string // and or == != < <= > >= + - * / in "not in"
	left, right node
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}

	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at position %d, got %q", what, t.pos, t.text)
	}

	return t, nil
}

// parseExpr parses the full precedence chain: or > and > not > comparison >
// additive > multiplicative > unary > primary.
func (p *parser) parseExpr() (node, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOr {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: "or", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenAnd {
		p.next()

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: "and", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (node, error) {
	// "not" here is the boolean prefix; "a not in b" is handled in
	// parseComparison after a left operand was consumed.
	if p.peek().kind == tokenNot {
		p.next()

		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &unaryNode{op: "not", operand: operand}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	switch {
	case p.peek().kind == tokenOperator && isComparisonOp(p.peek().text):
		op := p.next().text

		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		return &binaryNode{op: op, left: left, right: right}, nil

	case p.peek().kind == tokenIn:
		p.next()

		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		return &binaryNode{op: "in", left: left, right: right}, nil

	case p.peek().kind == tokenNot && p.tokens[p.pos+1].kind == tokenIn:
		p.next()
		p.next()

		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		return &binaryNode{op: "not in", left: left, right: right}, nil
	}

	return left, nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}

	return false
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOperator && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text

		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOperator && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokenOperator && p.peek().text == "-" {
		p.next()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &unaryNode{op: "-", operand: operand}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()

	switch t.kind {
	case tokenNumber:
		value, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}

		return &literalNode{value: value}, nil

	case tokenString:
		return &literalNode{value: t.text}, nil

	case tokenTrue:
		return &literalNode{value: true}, nil

	case tokenFalse:
		return &literalNode{value: false}, nil

	case tokenNil:
		return &literalNode{value: nil}, nil

	case tokenLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}

		return inner, nil

	case tokenLBracket:
		elements := make([]node, 0)

		for p.peek().kind != tokenRBracket {
			element, err := p.parseExpr()
			if err != nil {
				return nil, err
			}

			elements = append(elements, element)

			if p.peek().kind == tokenComma {
				p.next()
			}
		}

		p.next() // consume ']'

		return &listNode{elements: elements}, nil

	case tokenIdent:
		if p.peek().kind == tokenLParen {
			p.next()

			args := make([]node, 0)

			for p.peek().kind != tokenRParen {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}

				args = append(args, arg)

				if p.peek().kind == tokenComma {
					p.next()
				}
			}

			if _, err := p.expect(tokenRParen, "')'"); err != nil {
				return nil, err
			}

			return &callNode{name: t.text, args: args}, nil
		}

		return &identNode{path: t.text}, nil
	}

	return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
}
