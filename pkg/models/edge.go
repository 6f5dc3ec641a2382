package models

// ConditionType selects how an edge's guard is evaluated.
type ConditionType string

const (
	ConditionAlways     ConditionType = "always"
	ConditionField      ConditionType = "field"
	ConditionExpression ConditionType = "expression"
)

// Operator is a field-comparison operator.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not in"
)

// Condition describes an edge guard. Exactly one variant applies, selected
// by Type:
//
//   - always: unconditionally true.
//   - field: Field (dotted path into the record) compared with Value using
//     Operator. Value is parsed numerically first, then as a JSON literal
//     (lists for in / not in), falling back to the raw string.
//   - expression: Expression is a boolean expression over the record and
//     environment.
type Condition struct {
	Type       ConditionType `json:"type"                 validate:"required,oneof=always field expression"`
	Field      string        `json:"field,omitempty"`
	Operator   Operator      `json:"operator,omitempty"   validate:"omitempty,oneof=> >= < <= == != in 'not in'"`
	Value      string        `json:"value,omitempty"`
	Expression string        `json:"expression,omitempty"`
}

// Always is the unconditional edge guard.
func Always() Condition {
	return Condition{Type: ConditionAlways}
}

// Edge is a directed transition between two nodes of the same process.
// Sequence defines the evaluation order among a node's outgoing set.
type Edge struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	SourceID  string    `json:"source_id" validate:"required"`
	TargetID  string    `json:"target_id" validate:"required"`
	Sequence  int       `json:"sequence"`
	Condition Condition `json:"condition"`

	// AssigneeUserID optionally names who should act on the target node; with
	// NotifyAssignee set, traversing the edge notifies them.
	AssigneeUserID string `json:"assignee_user_id,omitempty"`
	NotifyAssignee bool   `json:"notify_assignee,omitempty"`
}

// NewEdge creates an always-true transition between two nodes.
func NewEdge(sourceID, targetID string) *Edge {
	return &Edge{
		ID:        generateID("edge"),
		SourceID:  sourceID,
		TargetID:  targetID,
		Sequence:  10,
		Condition: Always(),
	}
}
