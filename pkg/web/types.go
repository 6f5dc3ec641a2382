// Package web provides HTTP request and response types for the process API.
package web

import "github.com/procwise/procwise/pkg/models"

// CreateProcessRequest represents the request body for creating a process.
// Nodes and edges may be supplied inline or applied later as a definition.
type CreateProcessRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	TargetType  string                `json:"target_type" validate:"required"`
	Owner       string                `json:"owner"       validate:"required"`
	Trigger     *models.TriggerPolicy `json:"trigger,omitempty"`
	Nodes       []*models.Node        `json:"nodes,omitempty"`
	Edges       []*models.Edge        `json:"edges,omitempty"`
}

// UpdateProcessRequest supports partial updates. Supplying nodes or edges
// replaces the whole graph, which is refused while instances run.
type UpdateProcessRequest struct {
	Name        *string               `json:"name,omitempty" validate:"omitempty,min=3"`
	Description *string               `json:"description,omitempty"`
	Trigger     *models.TriggerPolicy `json:"trigger,omitempty"`
	Nodes       []*models.Node        `json:"nodes,omitempty"`
	Edges       []*models.Edge        `json:"edges,omitempty"`
}

// CreateInstanceRequest represents the request body for creating an
// instance.
type CreateInstanceRequest struct {
	ProcessID string           `json:"process_id" validate:"required"`
	Target    models.TargetRef `json:"target"`
	Owner     string           `json:"owner"`
	Start     bool             `json:"start"`
}

// TaskDecisionRequest carries a validate or reject call on a pending task.
type TaskDecisionRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// CancelInstanceRequest carries a manual cancellation.
type CancelInstanceRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InstanceResponse decorates an instance with its derived progress.
type InstanceResponse struct {
	*models.Instance

	Progress float64 `json:"progress"`
}
