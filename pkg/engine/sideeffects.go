package engine

import (
	"context"
	"fmt"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/protocol"
	"github.com/procwise/procwise/pkg/records"
)

// runSideEffects dispatches a node's configured side effects after entry.
// Auto-action and email failures are logged and swallowed; a code hook
// failure propagates because hooks carry workflow logic of their own.
func (m *stateMachine) runSideEffects(ctx context.Context, node *models.Node, record records.Record) error {
	actionCtx := protocol.ActionContext{
		InstanceID: m.instance.ID,
		ProcessID:  m.process.ID,
		NodeID:     node.ID,
		NodeName:   node.Name,
		Target:     m.instance.Target,
		Record:     record,
		Logger:     m.logger,
	}

	if node.AutoAction != "" {
		m.runAutoAction(ctx, node, actionCtx)
	}

	if node.CodeHook != "" {
		hook, err := m.engine.registry.CodeHook(node.CodeHook)
		if err != nil {
			return fmt.Errorf("node %q: %w", node.Name, err)
		}

		if err := hook(ctx, actionCtx); err != nil {
			return fmt.Errorf("code hook %q on node %q: %w", node.CodeHook, node.Name, err)
		}
	}

	m.sendNodeEmail(ctx, node)

	return nil
}

func (m *stateMachine) runAutoAction(ctx context.Context, node *models.Node, actionCtx protocol.ActionContext) {
	action, err := m.engine.registry.CreateAction(node.AutoAction, node.AutoActionConfig)
	if err != nil {
		m.logger.Warn("Auto-action unavailable, skipping",
			"node_id", node.ID, "action", node.AutoAction, "error", err)

		return
	}

	if err := action.Execute(ctx, actionCtx); err != nil {
		m.logger.Warn("Auto-action failed, continuing",
			"node_id", node.ID, "action", node.AutoAction, "error", err)
	}
}

// sendNodeEmail delivers the node's email policy through the host notifier.
func (m *stateMachine) sendNodeEmail(ctx context.Context, node *models.Node) {
	policy := node.Email
	if policy == nil || !policy.Enabled {
		return
	}

	notification := protocol.Notification{
		Subject: policy.Subject,
		Body:    policy.Body,
	}

	switch policy.To {
	case models.EmailToInstanceOwner:
		notification.UserID = m.instance.Owner
	case models.EmailToCustom:
		notification.Address = policy.CustomAddress
	default:
		notification.UserID = node.AssigneeUserID
	}

	if notification.UserID == "" && notification.Address == "" {
		m.logger.Debug("Email policy has no resolvable recipient, skipping", "node_id", node.ID)

		return
	}

	m.engine.notify(ctx, notification)
}

// notifyEdgeAssignee tells the edge's assignee that the workflow crossed
// their transition into the target node.
func (m *stateMachine) notifyEdgeAssignee(ctx context.Context, edge *models.Edge, next *models.Node) {
	if !edge.NotifyAssignee || edge.AssigneeUserID == "" {
		return
	}

	m.engine.notify(ctx, protocol.Notification{
		UserID:  edge.AssigneeUserID,
		Subject: fmt.Sprintf("Workflow step %q reached", next.Name),
		Body:    fmt.Sprintf("Instance %s moved to %q.", m.instance.Name, next.Name),
	})
}

// runEndAction applies the end node's post-completion action. All failures
// are swallowed: the instance is already settled.
func (m *stateMachine) runEndAction(ctx context.Context, node *models.Node) {
	action := node.EndAction
	if action == "" || action == models.EndActionNone {
		return
	}

	if action == models.EndActionArchive || action == models.EndActionBoth {
		if m.engine.mutator == nil {
			m.logger.Warn("Archive end action configured but no mutator wired", "node_id", node.ID)
		} else if err := m.engine.mutator.Archive(ctx, m.instance.Target); err != nil {
			m.logger.Warn("Failed to archive target record",
				"node_id", node.ID, "target_id", m.instance.Target.ID, "error", err)
		}
	}

	if action == models.EndActionNotify || action == models.EndActionBoth {
		m.engine.notify(ctx, protocol.Notification{
			UserID:  m.instance.Owner,
			Subject: fmt.Sprintf("Process %q finished", m.process.Name),
			Body:    fmt.Sprintf("Instance %s reached %q.", m.instance.Name, node.Name),
		})
	}

	m.sendNodeEmail(ctx, node)
}
