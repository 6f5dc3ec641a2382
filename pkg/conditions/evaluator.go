// Package conditions evaluates edge guards against target-record snapshots.
// Evaluation is deliberately forgiving: a misconfigured comparison defaults
// to true, while any runtime failure blocks the edge (false) instead of
// aborting the instance. Callers try edges in sequence order and take the
// first satisfied one.
package conditions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/procwise/procwise/pkg/expr"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/records"
)

// Evaluator dispatches over condition variants. It carries no per-instance
// state and is safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger

	// Bindings are extra expression bindings beyond "record", typically the
	// host environment.
	bindings map[string]any

	mu       sync.Mutex
	programs map[string]*expr.Program
}

// NewEvaluator creates a condition evaluator. Extra bindings are exposed to
// expression conditions alongside the record.
func NewEvaluator(logger *slog.Logger, bindings map[string]any) *Evaluator {
	if bindings == nil {
		bindings = make(map[string]any)
	}

	return &Evaluator{
		logger:   logger.With("module", "conditions"),
		bindings: bindings,
		programs: make(map[string]*expr.Program),
	}
}

// Evaluate reports whether an edge's condition is satisfied by the record.
// It never returns an error: evaluation failures block the edge.
func (e *Evaluator) Evaluate(edge *models.Edge, record records.Record) bool {
	switch edge.Condition.Type {
	case models.ConditionAlways, "":
		return true

	case models.ConditionField:
		return e.evaluateField(edge, record)

	case models.ConditionExpression:
		satisfied, err := e.Expression(edge.Condition.Expression, record)
		if err != nil {
			e.logger.Warn("Expression condition failed, blocking edge",
				"edge_id", edge.ID, "expression", edge.Condition.Expression, "error", err)

			return false
		}

		return satisfied
	}

	e.logger.Warn("Unknown condition type, blocking edge",
		"edge_id", edge.ID, "condition_type", edge.Condition.Type)

	return false
}

func (e *Evaluator) evaluateField(edge *models.Edge, record records.Record) bool {
	cond := edge.Condition

	// Incomplete configuration keeps the transition available rather than
	// wedging the workflow.
	if cond.Field == "" || cond.Operator == "" {
		e.logger.Warn("Incomplete field condition, treating as satisfied", "edge_id", edge.ID)

		return true
	}

	fieldValue, ok := record.Get(cond.Field)
	if !ok {
		return false
	}

	compareValue := ParseLiteral(cond.Value)

	satisfied, err := compare(cond.Operator, fieldValue, compareValue)
	if err != nil {
		e.logger.Warn("Field comparison failed, blocking edge",
			"edge_id", edge.ID, "field", cond.Field, "error", err)

		return false
	}

	return satisfied
}

// Expression evaluates a standalone boolean expression against a record,
// with the evaluator's extra bindings. Empty expressions are satisfied. Used
// for both edge conditions and process trigger guards.
func (e *Evaluator) Expression(expression string, record records.Record) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	env := expr.Env{"record": record.Map()}
	for k, v := range e.bindings {
		env[k] = v
	}

	return program.EvaluateBool(env)
}

// compile memoizes compiled programs; process definitions are immutable once
// instances run, so the cache never needs invalidation.
func (e *Evaluator) compile(expression string) (*expr.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programs[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.programs[expression] = program

	return program, nil
}

// ParseLiteral interprets a comparison literal, preferring a numeric
// reading, then a JSON structured literal (lists for in / not in, quoted
// strings, booleans), finally the raw string.
func ParseLiteral(raw string) any {
	if raw == "" {
		return raw
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}

	var structured any
	if err := json.Unmarshal([]byte(raw), &structured); err == nil {
		return structured
	}

	return raw
}

func compare(op models.Operator, field, value any) (bool, error) {
	switch op {
	case models.OpEqual:
		return expr.Equal(field, value), nil

	case models.OpNotEqual:
		return !expr.Equal(field, value), nil

	case models.OpGreater, models.OpGreaterEqual, models.OpLess, models.OpLessEqual:
		c, err := expr.Compare(field, value)
		if err != nil {
			return false, err
		}

		switch op {
		case models.OpGreater:
			return c > 0, nil
		case models.OpGreaterEqual:
			return c >= 0, nil
		case models.OpLess:
			return c < 0, nil
		default:
			return c <= 0, nil
		}

	case models.OpIn:
		return expr.Member(field, value)

	case models.OpNotIn:
		ok, err := expr.Member(field, value)
		if err != nil {
			return false, err
		}

		return !ok, nil
	}

	return false, fmt.Errorf("unsupported operator %q", op)
}
