// Package protocol defines the contracts between the engine and its host
// collaborators: auto-actions, code hooks, notification delivery and
// authorization. The engine calls these at defined points and owns none of
// their implementations.
package protocol

import (
	"context"
	"log/slog"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/records"
)

// ActionContext carries everything an auto-action or code hook may need
// about the node entry that triggered it.
type ActionContext struct {
	InstanceID string
	ProcessID  string
	NodeID     string
	NodeName   string
	Target     models.TargetRef
	Record     records.Record
	Logger     *slog.Logger
}

// AutoAction is a side effect dispatched when a node configured with it is
// entered. Failures are logged and swallowed by the engine; an action outage
// must never corrupt an instance's position.
type AutoAction interface {
	Execute(ctx context.Context, actionCtx ActionContext) error
}

// ActionFactory builds auto-actions from node configuration.
type ActionFactory interface {
	ID() string
	Create(config map[string]any) (AutoAction, error)
}

// CodeHook is a host-registered callback run on node entry, keyed by name on
// the node. Unlike auto-actions, hook failures propagate to the caller: the
// hook is part of the workflow's own logic.
type CodeHook func(ctx context.Context, actionCtx ActionContext) error

// Notification is a message for a user or address. Either UserID or Address
// is set.
type Notification struct {
	UserID  string
	Address string
	Subject string
	Body    string
}

// Notifier delivers notifications and emails. Delivery failures are the
// collaborator's problem; the engine logs and moves on.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Authorizer answers group-membership questions for manual task validation.
type Authorizer interface {
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
}
