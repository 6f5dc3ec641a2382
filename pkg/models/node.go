package models

// NodeType classifies a step in the process graph.
type NodeType string

const (
	NodeTypeStart   NodeType = "start"
	NodeTypeTask    NodeType = "task"
	NodeTypeGateway NodeType = "gateway"
	NodeTypeEnd     NodeType = "end"
)

// EndOutcome is the business outcome carried by an end node. It is recorded
// on the instance separately from the instance state so reporting can tell a
// failed end apart from a manual cancellation.
type EndOutcome string

const (
	EndOutcomeSuccess   EndOutcome = "success"
	EndOutcomeFailure   EndOutcome = "failure"
	EndOutcomeCancelled EndOutcome = "cancelled"
)

// EndAction is the post-completion action of an end node.
type EndAction string

const (
	EndActionNone    EndAction = "none"
	EndActionArchive EndAction = "archive"
	EndActionNotify  EndAction = "notify"
	EndActionBoth    EndAction = "both"
)

// EmailRecipient selects who receives a node's email notification.
type EmailRecipient string

const (
	EmailToAssignedUser  EmailRecipient = "assigned_user"
	EmailToInstanceOwner EmailRecipient = "instance_owner"
	EmailToCustom        EmailRecipient = "custom"
)

// EmailPolicy configures the email sent when a node is entered. Delivery is
// delegated to the host's notifier; failures never block the instance.
type EmailPolicy struct {
	Enabled       bool           `json:"enabled"`
	To            EmailRecipient `json:"to"                       validate:"omitempty,oneof=assigned_user instance_owner custom"`
	CustomAddress string         `json:"custom_address,omitempty"`
	Subject       string         `json:"subject,omitempty"`
	Body          string         `json:"body,omitempty"`
}

// Node is a typed step in a process graph. IDs are unique within the owning
// process only.
type Node struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"       validate:"required,min=1"`
	Type      NodeType `json:"type"       validate:"required,oneof=start task gateway end"`
	Sequence  int      `json:"sequence"`
	PositionX float64  `json:"position_x"`
	PositionY float64  `json:"position_y"`

	// AutoAction names a registered action factory dispatched on node entry.
	AutoAction       string         `json:"auto_action,omitempty"`
	AutoActionConfig map[string]any `json:"auto_action_config,omitempty"`

	// CodeHook names a registered callback run on node entry. Hook failures
	// surface to the caller, unlike auto-action failures.
	CodeHook string `json:"code_hook,omitempty"`

	// Manual validation: the instance parks on this node until an authorized
	// validate or reject call.
	RequiresValidation bool   `json:"requires_validation,omitempty"`
	AssigneeUserID     string `json:"assignee_user_id,omitempty"`
	AssigneeGroupID    string `json:"assignee_group_id,omitempty"`

	Email *EmailPolicy `json:"email,omitempty"`

	// End-node only.
	EndOutcome EndOutcome `json:"end_outcome,omitempty" validate:"omitempty,oneof=success failure cancelled"`
	EndAction  EndAction  `json:"end_action,omitempty"  validate:"omitempty,oneof=none archive notify both"`
}

// NewNode creates a node with a generated ID and default sequence.
func NewNode(name string, nodeType NodeType) *Node {
	return &Node{
		ID:       generateID("node"),
		Name:     name,
		Type:     nodeType,
		Sequence: 10,
	}
}

// IsTerminal reports whether entering this node finalizes the instance.
func (n *Node) IsTerminal() bool {
	return n.Type == NodeTypeEnd
}
