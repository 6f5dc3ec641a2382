package models

import "time"

// InstanceState is the lifecycle state of a process execution.
type InstanceState string

const (
	StateDraft     InstanceState = "draft"
	StateRunning   InstanceState = "running"
	StateCompleted InstanceState = "completed"
	StateCancelled InstanceState = "cancelled"
)

// TargetRef is a weak reference to the business record an instance runs
// against. The engine never owns the record's lifecycle: resolution happens
// on every access and a vanished record is an explicit failure, not a silent
// one.
type TargetRef struct {
	Type string `json:"type" validate:"required"`
	ID   string `json:"id"   validate:"required"`
}

// Instance is one execution of a process against one target record.
type Instance struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	ProcessID string        `json:"process_id" validate:"required"`
	Target    TargetRef     `json:"target"`
	State     InstanceState `json:"state"`

	// CurrentNodeID is empty only while the instance is draft.
	CurrentNodeID string `json:"current_node_id,omitempty"`

	// History is the append-only list of visited node IDs. Revisits append
	// duplicates; nothing at execution time prevents them.
	History []string `json:"history"`

	// EndOutcome records the reached end node's outcome, kept distinct from
	// State: a failure end and a manual cancel both leave State cancelled.
	EndOutcome EndOutcome `json:"end_outcome,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Owner     string     `json:"owner"`

	// ErrorLog accumulates advance failures for operator inspection.
	ErrorLog []string `json:"error_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInstance creates a draft instance of a process bound to one record.
func NewInstance(process *Process, target TargetRef, owner string) *Instance {
	now := time.Now().UTC()

	return &Instance{
		ID:        generateID("inst"),
		Name:      process.Name + " - " + target.Type + "/" + target.ID,
		ProcessID: process.ID,
		Target:    target,
		State:     StateDraft,
		History:   make([]string, 0),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the instance reached a final state. Terminal
// instances accept no further transitions.
func (i *Instance) IsTerminal() bool {
	return i.State == StateCompleted || i.State == StateCancelled
}

// Progress derives a position-in-graph percentage from the visit history.
// Completed is pinned to 100, draft and cancelled to 0; otherwise the count
// of visited nodes plus one over the total node count, clamped to 100. This
// is a crude approximation, not a critical-path measure, and the offset and
// clamp are kept for compatibility with existing consumers.
func (i *Instance) Progress(totalNodes int) float64 {
	switch i.State {
	case StateCompleted:
		return 100
	case StateDraft, StateCancelled:
		return 0
	}

	if totalNodes <= 0 {
		return 0
	}

	progress := float64(len(i.History)+1) / float64(totalNodes) * 100
	if progress > 100 {
		return 100
	}

	return progress
}

// RecordError appends an advance failure to the instance's error log.
func (i *Instance) RecordError(msg string) {
	i.ErrorLog = append(i.ErrorLog, msg)
	i.UpdatedAt = time.Now().UTC()
}
