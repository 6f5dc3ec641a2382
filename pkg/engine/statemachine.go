package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/protocol"
	"github.com/procwise/procwise/pkg/records"
)

// stateMachine drives one instance through its transitions. It mutates the
// instance in memory only; the engine persists the result and holds the
// per-instance lock for the machine's lifetime.
type stateMachine struct {
	engine   *Engine
	process  *models.Process
	instance *models.Instance
	logger   *slog.Logger
}

func (m *stateMachine) start(ctx context.Context) error {
	if m.instance.State != models.StateDraft {
		return fmt.Errorf("%w: state is %s", ErrNotDraft, m.instance.State)
	}

	if !m.process.Active {
		return fmt.Errorf("%w: %s", ErrProcessInactive, m.process.ID)
	}

	starts := m.process.NodesOfType(models.NodeTypeStart)
	switch {
	case len(starts) == 0:
		return fmt.Errorf("%w: %s", ErrNoStartNode, m.process.ID)
	case len(starts) > 1:
		return fmt.Errorf("%w: %s", ErrMultipleStartNodes, m.process.ID)
	}

	now := time.Now().UTC()
	m.instance.State = models.StateRunning
	m.instance.StartedAt = &now
	m.enter(starts[0])

	m.logger.Info("Instance started", "start_node_id", starts[0].ID)

	m.engine.publish(ctx, m.instance.ID, events.InstanceStarted{
		BaseEvent:  events.NewBaseEvent(events.InstanceStartedEvent),
		InstanceID: m.instance.ID,
		ProcessID:  m.process.ID,
		Target:     m.instance.Target,
	})

	return m.advance(ctx)
}

// advance walks the graph from the current node until it parks on a manual
// task, finalizes at an end node, or blocks. A blocked advance returns an
// error but leaves the instance running at its last node; replaying the
// advance after conditions change is the recovery path.
func (m *stateMachine) advance(ctx context.Context) error {
	if m.instance.State != models.StateRunning {
		if m.instance.IsTerminal() {
			return fmt.Errorf("%w: state is %s", ErrTerminalState, m.instance.State)
		}

		return fmt.Errorf("%w: state is %s", ErrNotRunning, m.instance.State)
	}

	for {
		if m.instance.CurrentNodeID == "" {
			return ErrNoCurrentNode
		}

		current := m.process.NodeByID(m.instance.CurrentNodeID)
		if current == nil {
			return fmt.Errorf("%w: %s", ErrUnknownNode, m.instance.CurrentNodeID)
		}

		if current.IsTerminal() {
			return m.finalize(ctx, current)
		}

		record, err := m.engine.resolver.Resolve(ctx, m.instance.Target)
		if err != nil {
			if records.IsNotFound(err) {
				return fmt.Errorf("%w: %s/%s",
					ErrDanglingReference, m.instance.Target.Type, m.instance.Target.ID)
			}

			return err
		}

		edges := m.process.OutgoingEdges(current.ID)
		if len(edges) == 0 {
			return fmt.Errorf("%w: node %q", ErrNoOutgoingEdge, current.Name)
		}

		// First satisfied edge in sequence order wins.
		var chosen *models.Edge

		for _, edge := range edges {
			if m.engine.evaluator.Evaluate(edge, record) {
				chosen = edge

				break
			}
		}

		if chosen == nil {
			return fmt.Errorf("%w: node %q", ErrNoSatisfiedCondition, current.Name)
		}

		next := m.process.NodeByID(chosen.TargetID)
		if next == nil {
			return fmt.Errorf("%w: edge %s target %s", ErrUnknownNode, chosen.ID, chosen.TargetID)
		}

		m.notifyEdgeAssignee(ctx, chosen, next)
		m.enter(next)

		m.logger.Info("Node entered",
			"node_id", next.ID, "node_name", next.Name, "via_edge", chosen.ID)

		m.engine.publish(ctx, m.instance.ID, events.NodeEntered{
			BaseEvent:  events.NewBaseEvent(events.NodeEnteredEvent),
			InstanceID: m.instance.ID,
			ProcessID:  m.process.ID,
			NodeID:     next.ID,
			NodeName:   next.Name,
		})

		if next.IsTerminal() {
			return m.finalize(ctx, next)
		}

		if next.RequiresValidation {
			m.park(ctx, next)

			return nil
		}

		if err := m.runSideEffects(ctx, next, record); err != nil {
			return err
		}
	}
}

// validateTask approves the pending manual task and resumes advancing.
func (m *stateMachine) validateTask(ctx context.Context, userID string) error {
	node, err := m.pendingTask()
	if err != nil {
		return err
	}

	if err := m.authorize(ctx, userID, node); err != nil {
		return err
	}

	m.logger.Info("Task validated", "node_id", node.ID, "user_id", userID)

	return m.advance(ctx)
}

// rejectTask cancels the instance from a pending manual task. The instance
// never reaches an end node, so no end outcome is recorded and no end action
// runs.
func (m *stateMachine) rejectTask(ctx context.Context, userID, reason string) error {
	node, err := m.pendingTask()
	if err != nil {
		return err
	}

	if err := m.authorize(ctx, userID, node); err != nil {
		return err
	}

	now := time.Now().UTC()
	m.instance.State = models.StateCancelled
	m.instance.EndedAt = &now
	m.instance.UpdatedAt = now

	m.logger.Info("Task rejected, instance cancelled",
		"node_id", node.ID, "user_id", userID, "reason", reason)

	m.engine.publish(ctx, m.instance.ID, events.InstanceCancelled{
		BaseEvent:  events.NewBaseEvent(events.InstanceCancelledEvent),
		InstanceID: m.instance.ID,
		ProcessID:  m.process.ID,
		Reason:     reason,
	})

	return nil
}

func (m *stateMachine) cancel(ctx context.Context, reason string) error {
	if m.instance.IsTerminal() {
		return fmt.Errorf("%w: state is %s", ErrTerminalState, m.instance.State)
	}

	now := time.Now().UTC()
	m.instance.State = models.StateCancelled
	m.instance.EndedAt = &now
	m.instance.UpdatedAt = now

	m.logger.Info("Instance cancelled", "reason", reason)

	m.engine.publish(ctx, m.instance.ID, events.InstanceCancelled{
		BaseEvent:  events.NewBaseEvent(events.InstanceCancelledEvent),
		InstanceID: m.instance.ID,
		ProcessID:  m.process.ID,
		Reason:     reason,
	})

	return nil
}

// finalize settles the instance at an end node. Idempotent: a second call on
// a terminal instance is a no-op.
func (m *stateMachine) finalize(ctx context.Context, endNode *models.Node) error {
	if m.instance.IsTerminal() {
		return nil
	}

	outcome := endNode.EndOutcome
	if outcome == "" {
		outcome = models.EndOutcomeSuccess
	}

	now := time.Now().UTC()
	m.instance.EndOutcome = outcome
	m.instance.EndedAt = &now
	m.instance.UpdatedAt = now

	if outcome == models.EndOutcomeSuccess {
		m.instance.State = models.StateCompleted
	} else {
		m.instance.State = models.StateCancelled
	}

	m.runEndAction(ctx, endNode)

	m.logger.Info("Instance finalized",
		"end_node_id", endNode.ID, "state", m.instance.State, "outcome", outcome)

	if m.instance.State == models.StateCompleted {
		m.engine.publish(ctx, m.instance.ID, events.InstanceCompleted{
			BaseEvent:  events.NewBaseEvent(events.InstanceCompletedEvent),
			InstanceID: m.instance.ID,
			ProcessID:  m.process.ID,
			Outcome:    outcome,
		})
	} else {
		m.engine.publish(ctx, m.instance.ID, events.InstanceCancelled{
			BaseEvent:  events.NewBaseEvent(events.InstanceCancelledEvent),
			InstanceID: m.instance.ID,
			ProcessID:  m.process.ID,
			Outcome:    outcome,
		})
	}

	return nil
}

// enter moves the instance onto a node and appends it to the visit history.
func (m *stateMachine) enter(node *models.Node) {
	m.instance.CurrentNodeID = node.ID
	m.instance.History = append(m.instance.History, node.ID)
	m.instance.UpdatedAt = time.Now().UTC()
}

// park signals collaborators that the instance waits on a manual task.
func (m *stateMachine) park(ctx context.Context, node *models.Node) {
	m.logger.Info("Instance parked on manual task",
		"node_id", node.ID, "assignee_user_id", node.AssigneeUserID,
		"assignee_group_id", node.AssigneeGroupID)

	m.engine.publish(ctx, m.instance.ID, events.TaskPending{
		BaseEvent:       events.NewBaseEvent(events.TaskPendingEvent),
		InstanceID:      m.instance.ID,
		ProcessID:       m.process.ID,
		NodeID:          node.ID,
		NodeName:        node.Name,
		AssigneeUserID:  node.AssigneeUserID,
		AssigneeGroupID: node.AssigneeGroupID,
	})

	if node.AssigneeUserID != "" {
		m.engine.notify(ctx, protocol.Notification{
			UserID:  node.AssigneeUserID,
			Subject: fmt.Sprintf("Task %q awaits your validation", node.Name),
			Body:    fmt.Sprintf("Instance %s is waiting on %q.", m.instance.Name, node.Name),
		})
	}

	m.sendNodeEmail(ctx, node)
}

// pendingTask returns the current node if it is a manual task awaiting
// validation.
func (m *stateMachine) pendingTask() (*models.Node, error) {
	if m.instance.State != models.StateRunning {
		return nil, fmt.Errorf("%w: state is %s", ErrNotRunning, m.instance.State)
	}

	if m.instance.CurrentNodeID == "" {
		return nil, ErrNoCurrentNode
	}

	node := m.process.NodeByID(m.instance.CurrentNodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, m.instance.CurrentNodeID)
	}

	if !node.RequiresValidation || node.IsTerminal() {
		return nil, fmt.Errorf("%w: node %q", ErrNotAwaitingValidation, node.Name)
	}

	return node, nil
}

// authorize checks whether userID may act on the node's task. Unassigned
// tasks accept anyone; a group assignment requires the host authorizer.
func (m *stateMachine) authorize(ctx context.Context, userID string, node *models.Node) error {
	if node.AssigneeUserID == "" && node.AssigneeGroupID == "" {
		return nil
	}

	if node.AssigneeUserID != "" && node.AssigneeUserID == userID {
		return nil
	}

	if node.AssigneeGroupID != "" && m.engine.authorizer != nil {
		member, err := m.engine.authorizer.IsMember(ctx, userID, node.AssigneeGroupID)
		if err != nil {
			return fmt.Errorf("group membership check: %w", err)
		}

		if member {
			return nil
		}
	}

	return fmt.Errorf("%w: user %s, node %q", ErrNotAuthorized, userID, node.Name)
}
