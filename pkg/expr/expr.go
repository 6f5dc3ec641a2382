// Package expr implements the restricted boolean expression language used by
// transition guards and trigger conditions. Expressions support comparisons,
// boolean connectives, arithmetic, list literals, dotted field dereference
// and a small set of date helpers. Programs are compiled once at process save
// and evaluated per record; there is no general-purpose interpreter behind
// them.
package expr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Env holds the bindings an expression evaluates against, typically
// {"record": <attributes>, "env": <host environment>}.
type Env map[string]any

// getter lets bindings resolve their own sub-paths; records.Record satisfies
// it without this package importing it.
type getter interface {
	Get(path string) (any, bool)
}

// Program is a compiled expression.
type Program struct {
	source string
	root   node
}

var errUnknownIdent = errors.New("unknown identifier")

// Compile parses src into an evaluable program.
func Compile(src string) (*Program, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	p := &parser{tokens: tokens}

	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("compile %q: trailing input at position %d", src, p.peek().pos)
	}

	return &Program{source: src, root: root}, nil
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.source
}

// Evaluate runs the program against the given bindings.
func (p *Program) Evaluate(env Env) (any, error) {
	return p.root.eval(env)
}

// EvaluateBool runs the program and coerces the result to a boolean using
// truthiness rules: nil and zero values are false, everything else true.
func (p *Program) EvaluateBool(env Env) (bool, error) {
	value, err := p.Evaluate(env)
	if err != nil {
		return false, err
	}

	return truthy(value), nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

func (n *literalNode) eval(_ Env) (any, error) {
	return n.value, nil
}

func (n *identNode) eval(env Env) (any, error) {
	segments := strings.Split(n.path, ".")

	value, ok := env[segments[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownIdent, segments[0])
	}

	for i := 1; i < len(segments); i++ {
		switch v := value.(type) {
		case getter:
			result, ok := v.Get(strings.Join(segments[i:], "."))
			if !ok {
				return nil, fmt.Errorf("%w: %s", errUnknownIdent, n.path)
			}

			return result, nil
		case map[string]any:
			next, ok := v[segments[i]]
			if !ok {
				return nil, fmt.Errorf("%w: %s", errUnknownIdent, n.path)
			}

			value = next
		default:
			return nil, fmt.Errorf("%w: %s has no field %s", errUnknownIdent, n.path, segments[i])
		}
	}

	return value, nil
}

func (n *listNode) eval(env Env) (any, error) {
	values := make([]any, 0, len(n.elements))

	for _, element := range n.elements {
		value, err := element.eval(env)
		if err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, nil
}

func (n *callNode) eval(env Env) (any, error) {
	args := make([]any, 0, len(n.args))

	for _, arg := range n.args {
		value, err := arg.eval(env)
		if err != nil {
			return nil, err
		}

		args = append(args, value)
	}

	switch n.name {
	case "now":
		return time.Now().UTC(), nil

	case "date":
		if len(args) != 1 {
			return nil, errors.New("date expects one argument")
		}

		s, ok := args[0].(string)
		if !ok {
			return nil, errors.New("date expects a string argument")
		}

		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("date: %w", err)
		}

		return t, nil

	case "len":
		if len(args) != 1 {
			return nil, errors.New("len expects one argument")
		}

		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len: unsupported type %T", args[0])
		}
	}

	return nil, fmt.Errorf("unknown function %q", n.name)
}

func (n *unaryNode) eval(env Env) (any, error) {
	value, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "not":
		return !truthy(value), nil
	case "-":
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", value)
		}

		return -f, nil
	}

	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

func (n *binaryNode) eval(env Env) (any, error) {
	// Boolean connectives short-circuit.
	switch n.op {
	case "and":
		left, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}

		if !truthy(left) {
			return false, nil
		}

		right, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}

		return truthy(right), nil

	case "or":
		left, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}

		if truthy(left) {
			return true, nil
		}

		right, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}

		return truthy(right), nil
	}

	left, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}

	right, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<", "<=", ">", ">=":
		return order(n.op, left, right)
	case "in":
		return Member(left, right)
	case "not in":
		ok, err := Member(left, right)
		if err != nil {
			return nil, err
		}

		return !ok, nil
	case "+", "-", "*", "/":
		return arithmetic(n.op, left, right)
	}

	return nil, fmt.Errorf("unknown operator %q", n.op)
}

// Equal compares two values, coercing numeric types so 5 == 5.0 holds.
func Equal(left, right any) bool {
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return lf == rf
		}
	}

	if lt, ok := left.(time.Time); ok {
		if rt, ok := right.(time.Time); ok {
			return lt.Equal(rt)
		}
	}

	return left == right
}

// Compare orders two values. Numbers, strings and times are ordered; mixing
// kinds is an error.
func Compare(left, right any) (int, error) {
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return strings.Compare(ls, rs), nil
		}
	}

	if lt, ok := left.(time.Time); ok {
		if rt, ok := right.(time.Time); ok {
			return lt.Compare(rt), nil
		}
	}

	return 0, fmt.Errorf("cannot order %T against %T", left, right)
}

// Member reports whether left occurs in right (list membership or substring).
func Member(left, right any) (bool, error) {
	switch container := right.(type) {
	case []any:
		for _, element := range container {
			if Equal(left, element) {
				return true, nil
			}
		}

		return false, nil

	case string:
		s, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("cannot test %T membership in string", left)
		}

		return strings.Contains(container, s), nil
	}

	return false, fmt.Errorf("cannot test membership in %T", right)
}

func order(op string, left, right any) (any, error) {
	c, err := Compare(left, right)
	if err != nil {
		return nil, err
	}

	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func arithmetic(op string, left, right any) (any, error) {
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	if !lok || !rok {
		return nil, fmt.Errorf("cannot apply %q to %T and %T", op, left, right)
	}

	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	default:
		if rf == 0 {
			return nil, errors.New("division by zero")
		}

		return lf / rf, nil
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
