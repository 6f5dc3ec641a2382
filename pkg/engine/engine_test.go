package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence/file"
	"github.com/procwise/procwise/pkg/protocol"
	"github.com/procwise/procwise/pkg/records"
	"github.com/procwise/procwise/pkg/registry"
)

type capturingNotifier struct {
	notifications []protocol.Notification
}

func (n *capturingNotifier) Notify(_ context.Context, notification protocol.Notification) error {
	n.notifications = append(n.notifications, notification)

	return nil
}

type eventRecorder struct {
	types []events.EventType
}

func (p *eventRecorder) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.types = append(p.types, event.GetType())

	return nil
}

type staticAuthorizer struct {
	members map[string][]string // groupID -> userIDs
}

func (a *staticAuthorizer) IsMember(_ context.Context, userID, groupID string) (bool, error) {
	for _, member := range a.members[groupID] {
		if member == userID {
			return true, nil
		}
	}

	return false, nil
}

type testHarness struct {
	engine    *Engine
	resolver  *records.MapResolver
	notifier  *capturingNotifier
	publisher *eventRecorder
	registry  *registry.Registry
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := records.NewMapResolver()
	notifier := &capturingNotifier{}
	publisher := &eventRecorder{}
	reg := registry.NewRegistry(logger)

	eng, err := New(Config{
		Logger:      logger,
		Persistence: file.NewPersistence(t.TempDir()),
		Resolver:    resolver,
		Mutator:     resolver,
		Registry:    reg,
		Notifier:    notifier,
		Authorizer:  &staticAuthorizer{members: map[string][]string{"managers": {"bob"}}},
		Publisher:   publisher,
	})
	require.NoError(t, err)

	return &testHarness{
		engine:    eng,
		resolver:  resolver,
		notifier:  notifier,
		publisher: publisher,
		registry:  reg,
	}
}

func (h *testHarness) saveProcess(t *testing.T, process *models.Process) {
	t.Helper()
	require.NoError(t, h.engine.persistence.ProcessRepository().SaveProcess(context.Background(), process))
}

func (h *testHarness) putRecord(ref models.TargetRef, record records.MapRecord) {
	h.resolver.Put(ref, record)
}

func node(id string, nodeType models.NodeType) *models.Node {
	return &models.Node{ID: id, Name: id, Type: nodeType}
}

func edge(id, source, target string, sequence int) *models.Edge {
	return &models.Edge{ID: id, SourceID: source, TargetID: target, Sequence: sequence, Condition: models.Always()}
}

func fieldEdge(id, source, target string, sequence int, field string, op models.Operator, value string) *models.Edge {
	return &models.Edge{
		ID: id, SourceID: source, TargetID: target, Sequence: sequence,
		Condition: models.Condition{Type: models.ConditionField, Field: field, Operator: op, Value: value},
	}
}

func assemble(t *testing.T, process *models.Process, nodes []*models.Node, edges []*models.Edge) {
	t.Helper()

	for _, n := range nodes {
		require.NoError(t, process.AddNode(n))
	}

	for _, e := range edges {
		require.NoError(t, process.AddEdge(e))
	}
}

// linearProcess is start -> task -> end, unconditional.
func linearProcess(t *testing.T) *models.Process {
	t.Helper()

	process := models.NewProcess("linear", "invoice", "owner-1")
	process.Active = true

	assemble(t, process,
		[]*models.Node{node("start", models.NodeTypeStart), node("task", models.NodeTypeTask), node("end", models.NodeTypeEnd)},
		[]*models.Edge{edge("e1", "start", "task", 10), edge("e2", "task", "end", 10)},
	)

	return process
}

func invoiceRef() models.TargetRef {
	return models.TargetRef{Type: "invoice", ID: "inv-1"}
}

func TestCreateInstance_InactiveProcess(t *testing.T) {
	h := newHarness(t)

	process := linearProcess(t)
	process.Active = false
	h.saveProcess(t, process)

	_, err := h.engine.CreateInstance(context.Background(), process.ID, invoiceRef(), "owner-1")
	assert.ErrorIs(t, err, ErrProcessInactive)
}

func TestStartInstance_RunsToCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := linearProcess(t)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{"amount": 100.0})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, instance.State)

	instance, err = h.engine.StartInstance(ctx, instance.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, instance.State)
	assert.Equal(t, models.EndOutcomeSuccess, instance.EndOutcome)
	assert.Equal(t, []string{"start", "task", "end"}, instance.History)
	assert.Equal(t, "end", instance.CurrentNodeID)
	require.NotNil(t, instance.StartedAt)
	require.NotNil(t, instance.EndedAt)
	assert.InDelta(t, 100, instance.Progress(len(process.Nodes)), 0.001)
	assert.Empty(t, instance.ErrorLog)

	assert.Equal(t, []events.EventType{
		events.InstanceStartedEvent,
		events.NodeEnteredEvent, // task
		events.NodeEnteredEvent, // end
		events.InstanceCompletedEvent,
	}, h.publisher.types)

	// The completed state survived the round-trip to persistence.
	stored, err := h.engine.persistence.InstanceRepository().InstanceByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, stored.State)
}

func TestStartInstance_NotDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := linearProcess(t)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	_, err = h.engine.StartInstance(ctx, instance.ID)
	require.NoError(t, err)

	instance, err = h.engine.StartInstance(ctx, instance.ID)
	assert.ErrorIs(t, err, ErrNotDraft)

	// Wrong-state calls are caller mistakes, not execution failures.
	assert.Empty(t, instance.ErrorLog)
}

func TestStartInstance_StartNodeCardinality(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("no start node", func(t *testing.T) {
		process := models.NewProcess("no start", "invoice", "owner-1")
		process.Active = true
		assemble(t, process, []*models.Node{node("end", models.NodeTypeEnd)}, nil)
		h.saveProcess(t, process)

		instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
		require.NoError(t, err)

		_, err = h.engine.StartInstance(ctx, instance.ID)
		assert.ErrorIs(t, err, ErrNoStartNode)
	})

	t.Run("multiple start nodes", func(t *testing.T) {
		process := models.NewProcess("two starts", "invoice", "owner-1")
		process.Active = true
		assemble(t, process,
			[]*models.Node{node("s1", models.NodeTypeStart), node("s2", models.NodeTypeStart), node("end", models.NodeTypeEnd)},
			[]*models.Edge{edge("e1", "s1", "end", 10), edge("e2", "s2", "end", 10)},
		)
		h.saveProcess(t, process)

		instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
		require.NoError(t, err)

		_, err = h.engine.StartInstance(ctx, instance.ID)
		assert.ErrorIs(t, err, ErrMultipleStartNodes)
	})
}

func TestAdvance_GatewayFirstSatisfiedEdgeWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := models.NewProcess("routing", "invoice", "owner-1")
	process.Active = true
	assemble(t, process,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("gateway", models.NodeTypeGateway),
			node("high", models.NodeTypeTask),
			node("medium", models.NodeTypeTask),
			node("low", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{
			edge("e0", "start", "gateway", 10),
			fieldEdge("e1", "gateway", "high", 10, "amount", models.OpGreater, "10000"),
			fieldEdge("e2", "gateway", "medium", 20, "amount", models.OpGreater, "1000"),
			edge("e3", "gateway", "low", 30),
			edge("e4", "high", "end", 10),
			edge("e5", "medium", "end", 10),
			edge("e6", "low", "end", 10),
		},
	)
	h.saveProcess(t, process)

	tests := []struct {
		name   string
		amount float64
		via    string
	}{
		{name: "high amount", amount: 50000, via: "high"},
		{name: "medium amount", amount: 1500, via: "medium"},
		{name: "low amount falls through", amount: 200, via: "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := models.TargetRef{Type: "invoice", ID: "inv-" + tt.via}
			h.putRecord(ref, records.MapRecord{"amount": tt.amount})

			instance, err := h.engine.CreateInstance(ctx, process.ID, ref, "owner-1")
			require.NoError(t, err)

			instance, err = h.engine.StartInstance(ctx, instance.ID)
			require.NoError(t, err)

			assert.Equal(t, models.StateCompleted, instance.State)
			assert.Equal(t, []string{"start", "gateway", tt.via, "end"}, instance.History)
		})
	}
}

func TestAdvance_BlockedThenReplayed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := models.NewProcess("guarded", "invoice", "owner-1")
	process.Active = true
	assemble(t, process,
		[]*models.Node{node("start", models.NodeTypeStart), node("gateway", models.NodeTypeGateway), node("end", models.NodeTypeEnd)},
		[]*models.Edge{
			edge("e0", "start", "gateway", 10),
			fieldEdge("e1", "gateway", "end", 10, "state", models.OpEqual, "approved"),
		},
	)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{"state": "pending"})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	instance, err = h.engine.StartInstance(ctx, instance.ID)
	require.ErrorIs(t, err, ErrNoSatisfiedCondition)
	assert.True(t, IsBlockedError(err))

	// Blocked, not dead: still running at the gateway, failure recorded.
	assert.Equal(t, models.StateRunning, instance.State)
	assert.Equal(t, "gateway", instance.CurrentNodeID)
	require.Len(t, instance.ErrorLog, 1)
	assert.Contains(t, instance.ErrorLog[0], "no transition condition satisfied")

	// Once the record changes, replaying the advance completes the instance.
	h.putRecord(invoiceRef(), records.MapRecord{"state": "approved"})

	instance, err = h.engine.AdvanceInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, instance.State)
}

func TestAdvance_DanglingReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := linearProcess(t)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	h.resolver.Delete(invoiceRef())

	instance, err = h.engine.StartInstance(ctx, instance.ID)
	require.ErrorIs(t, err, ErrDanglingReference)
	assert.Equal(t, models.StateRunning, instance.State)
	assert.Equal(t, "start", instance.CurrentNodeID)
	assert.NotEmpty(t, instance.ErrorLog)
}

func TestAdvance_NoOutgoingEdge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := models.NewProcess("dead end", "invoice", "owner-1")
	process.Active = true
	assemble(t, process,
		[]*models.Node{node("start", models.NodeTypeStart), node("task", models.NodeTypeTask), node("end", models.NodeTypeEnd)},
		[]*models.Edge{edge("e1", "start", "task", 10)},
	)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	instance, err = h.engine.StartInstance(ctx, instance.ID)
	require.ErrorIs(t, err, ErrNoOutgoingEdge)
	assert.Equal(t, models.StateRunning, instance.State)
	assert.Equal(t, "task", instance.CurrentNodeID)
}

func TestAdvance_FailureEndOutcome(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	endNode := node("end", models.NodeTypeEnd)
	endNode.EndOutcome = models.EndOutcomeFailure

	process := models.NewProcess("failing", "invoice", "owner-1")
	process.Active = true
	assemble(t, process,
		[]*models.Node{node("start", models.NodeTypeStart), endNode},
		[]*models.Edge{edge("e1", "start", "end", 10)},
	)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	instance, err = h.engine.StartInstance(ctx, instance.ID)
	require.NoError(t, err)

	// A failure end cancels the instance but keeps the outcome distinct from
	// a manual cancellation.
	assert.Equal(t, models.StateCancelled, instance.State)
	assert.Equal(t, models.EndOutcomeFailure, instance.EndOutcome)
	assert.Contains(t, h.publisher.types, events.InstanceCancelledEvent)
}

func TestAdvance_ArchiveEndAction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	endNode := node("end", models.NodeTypeEnd)
	endNode.EndAction = models.EndActionBoth

	process := models.NewProcess("archiving", "invoice", "owner-1")
	process.Active = true
	assemble(t, process,
		[]*models.Node{node("start", models.NodeTypeStart), endNode},
		[]*models.Edge{edge("e1", "start", "end", 10)},
	)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{"active": true})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-2")
	require.NoError(t, err)

	_, err = h.engine.StartInstance(ctx, instance.ID)
	require.NoError(t, err)

	record, err := h.resolver.Resolve(ctx, invoiceRef())
	require.NoError(t, err)

	active, ok := record.Get("active")
	require.True(t, ok)
	assert.Equal(t, false, active)

	require.Len(t, h.notifier.notifications, 1)
	assert.Equal(t, "owner-2", h.notifier.notifications[0].UserID)
}

func TestManualValidation(t *testing.T) {
	ctx := context.Background()

	approval := func() *models.Node {
		n := node("approve", models.NodeTypeTask)
		n.RequiresValidation = true
		n.AssigneeUserID = "alice"

		return n
	}

	setup := func(t *testing.T, h *testHarness, assignee func(*models.Node)) *models.Instance {
		t.Helper()

		approve := approval()
		if assignee != nil {
			assignee(approve)
		}

		process := models.NewProcess("approval", "invoice", "owner-1")
		process.Active = true
		assemble(t, process,
			[]*models.Node{node("start", models.NodeTypeStart), approve, node("end", models.NodeTypeEnd)},
			[]*models.Edge{edge("e1", "start", "approve", 10), edge("e2", "approve", "end", 10)},
		)
		h.saveProcess(t, process)
		h.putRecord(invoiceRef(), records.MapRecord{})

		instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
		require.NoError(t, err)

		instance, err = h.engine.StartInstance(ctx, instance.ID)
		require.NoError(t, err)

		// The instance parks on the manual task instead of completing.
		require.Equal(t, models.StateRunning, instance.State)
		require.Equal(t, "approve", instance.CurrentNodeID)

		return instance
	}

	t.Run("parks and notifies the assignee", func(t *testing.T) {
		h := newHarness(t)
		setup(t, h, nil)

		assert.Contains(t, h.publisher.types, events.TaskPendingEvent)
		require.NotEmpty(t, h.notifier.notifications)
		assert.Equal(t, "alice", h.notifier.notifications[0].UserID)
	})

	t.Run("validate by assignee resumes", func(t *testing.T) {
		h := newHarness(t)
		instance := setup(t, h, nil)

		instance, err := h.engine.ValidateTask(ctx, instance.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, instance.State)
		assert.Equal(t, []string{"start", "approve", "end"}, instance.History)
	})

	t.Run("validate by stranger is rejected", func(t *testing.T) {
		h := newHarness(t)
		instance := setup(t, h, nil)

		instance, err := h.engine.ValidateTask(ctx, instance.ID, "mallory")
		require.ErrorIs(t, err, ErrNotAuthorized)
		assert.True(t, IsAuthorizationError(err))

		// Still parked, and the refusal is not an execution failure.
		assert.Equal(t, models.StateRunning, instance.State)
		assert.Equal(t, "approve", instance.CurrentNodeID)
		assert.Empty(t, instance.ErrorLog)
	})

	t.Run("group member may validate", func(t *testing.T) {
		h := newHarness(t)
		instance := setup(t, h, func(n *models.Node) {
			n.AssigneeUserID = ""
			n.AssigneeGroupID = "managers"
		})

		instance, err := h.engine.ValidateTask(ctx, instance.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, instance.State)
	})

	t.Run("non-member of group is rejected", func(t *testing.T) {
		h := newHarness(t)
		instance := setup(t, h, func(n *models.Node) {
			n.AssigneeUserID = ""
			n.AssigneeGroupID = "managers"
		})

		_, err := h.engine.ValidateTask(ctx, instance.ID, "mallory")
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("unassigned task accepts anyone", func(t *testing.T) {
		h := newHarness(t)
		instance := setup(t, h, func(n *models.Node) {
			n.AssigneeUserID = ""
		})

		instance, err := h.engine.ValidateTask(ctx, instance.ID, "anyone")
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, instance.State)
	})

	t.Run("reject cancels without an end outcome", func(t *testing.T) {
		h := newHarness(t)
		instance := setup(t, h, nil)

		instance, err := h.engine.RejectTask(ctx, instance.ID, "alice", "numbers do not add up")
		require.NoError(t, err)

		assert.Equal(t, models.StateCancelled, instance.State)
		assert.Empty(t, instance.EndOutcome)
		require.NotNil(t, instance.EndedAt)
		assert.Contains(t, h.publisher.types, events.InstanceCancelledEvent)
	})
}

func TestValidateTask_NotAwaitingValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := models.NewProcess("guarded", "invoice", "owner-1")
	process.Active = true
	assemble(t, process,
		[]*models.Node{node("start", models.NodeTypeStart), node("gateway", models.NodeTypeGateway), node("end", models.NodeTypeEnd)},
		[]*models.Edge{
			edge("e0", "start", "gateway", 10),
			fieldEdge("e1", "gateway", "end", 10, "state", models.OpEqual, "approved"),
		},
	)
	h.saveProcess(t, process)
	h.putRecord(invoiceRef(), records.MapRecord{"state": "pending"})

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	_, err = h.engine.StartInstance(ctx, instance.ID)
	require.ErrorIs(t, err, ErrNoSatisfiedCondition)

	_, err = h.engine.ValidateTask(ctx, instance.ID, "alice")
	assert.ErrorIs(t, err, ErrNotAwaitingValidation)
}

func TestCancelInstance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	process := linearProcess(t)
	h.saveProcess(t, process)

	instance, err := h.engine.CreateInstance(ctx, process.ID, invoiceRef(), "owner-1")
	require.NoError(t, err)

	instance, err = h.engine.CancelInstance(ctx, instance.ID, "obsolete")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, instance.State)
	assert.Empty(t, instance.EndOutcome)

	_, err = h.engine.CancelInstance(ctx, instance.ID, "again")
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestAdvance_CodeHooks(t *testing.T) {
	ctx := context.Background()

	hookedProcess := func(t *testing.T, hookName string) *models.Process {
		t.Helper()

		task := node("task", models.NodeTypeTask)
		task.CodeHook = hookName

		process := models.NewProcess("hooked", "invoice", "owner-1")
		process.Active = true
		assemble(t, process,
			[]*models.Node{node("start", models.NodeTypeStart), task, node("end", models.NodeTypeEnd)},
			[]*models.Edge{edge("e1", "start", "task", 10), edge("e2", "task", "end", 10)},
		)

		return process
	}

	t.Run("unregistered hook blocks the advance", func(t *testing.T) {
		h := newHarness(t)
		h.saveProcess(t, hookedProcess(t, "nonexistent"))
		h.putRecord(invoiceRef(), records.MapRecord{})

		process, err := h.engine.processes().Processes(ctx)
		require.NoError(t, err)
		require.Len(t, process, 1)

		instance, err := h.engine.CreateInstance(ctx, process[0].ID, invoiceRef(), "owner-1")
		require.NoError(t, err)

		instance, err = h.engine.StartInstance(ctx, instance.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
		assert.Equal(t, models.StateRunning, instance.State)
		assert.Equal(t, "task", instance.CurrentNodeID)
		assert.NotEmpty(t, instance.ErrorLog)
	})

	t.Run("failing hook propagates", func(t *testing.T) {
		h := newHarness(t)
		h.registry.RegisterCodeHook("explode", func(_ context.Context, _ protocol.ActionContext) error {
			return errors.New("boom")
		})
		p := hookedProcess(t, "explode")
		h.saveProcess(t, p)
		h.putRecord(invoiceRef(), records.MapRecord{})

		instance, err := h.engine.CreateInstance(ctx, p.ID, invoiceRef(), "owner-1")
		require.NoError(t, err)

		instance, err = h.engine.StartInstance(ctx, instance.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Equal(t, models.StateRunning, instance.State)
	})

	t.Run("successful hook is invoked once and advance continues", func(t *testing.T) {
		h := newHarness(t)

		calls := 0
		h.registry.RegisterCodeHook("audit", func(_ context.Context, actionCtx protocol.ActionContext) error {
			calls++
			assert.Equal(t, "task", actionCtx.NodeID)

			return nil
		})
		p := hookedProcess(t, "audit")
		h.saveProcess(t, p)
		h.putRecord(invoiceRef(), records.MapRecord{})

		instance, err := h.engine.CreateInstance(ctx, p.ID, invoiceRef(), "owner-1")
		require.NoError(t, err)

		instance, err = h.engine.StartInstance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, instance.State)
		assert.Equal(t, 1, calls)
	})
}

func TestEvaluateTriggers(t *testing.T) {
	ctx := context.Background()

	triggered := func(enabled bool, on models.TriggerEvent, condition string) *models.Process {
		process := models.NewProcess("auto "+string(on), "invoice", "owner-1")
		process.Active = true
		process.Trigger = &models.TriggerPolicy{Enabled: enabled, On: on, Condition: condition}

		return process
	}

	wire := func(t *testing.T, h *testHarness, process *models.Process) {
		t.Helper()
		assemble(t, process,
			[]*models.Node{node("start", models.NodeTypeStart), node("end", models.NodeTypeEnd)},
			[]*models.Edge{edge("e1", "start", "end", 10)},
		)
		h.saveProcess(t, process)
	}

	t.Run("matching trigger starts an instance", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(true, models.TriggerOnCreate, ""))
		h.putRecord(invoiceRef(), records.MapRecord{"amount": 500.0})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		require.Len(t, started, 1)
		assert.Equal(t, models.StateCompleted, started[0].State)
	})

	t.Run("both covers create and write", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(true, models.TriggerOnBoth, ""))
		h.putRecord(invoiceRef(), records.MapRecord{})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnWrite, "inv-1")
		require.NoError(t, err)
		assert.Len(t, started, 1)
	})

	t.Run("event mismatch skips", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(true, models.TriggerOnCreate, ""))
		h.putRecord(invoiceRef(), records.MapRecord{})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnWrite, "inv-1")
		require.NoError(t, err)
		assert.Empty(t, started)
	})

	t.Run("disabled trigger skips", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(false, models.TriggerOnCreate, ""))
		h.putRecord(invoiceRef(), records.MapRecord{})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		assert.Empty(t, started)
	})

	t.Run("inactive process skips", func(t *testing.T) {
		h := newHarness(t)
		process := triggered(true, models.TriggerOnCreate, "")
		process.Active = false
		wire(t, h, process)
		h.putRecord(invoiceRef(), records.MapRecord{})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		assert.Empty(t, started)
	})

	t.Run("guard expression filters candidates", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(true, models.TriggerOnCreate, "record.amount > 1000"))
		h.putRecord(invoiceRef(), records.MapRecord{"amount": 500.0})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		assert.Empty(t, started)

		h.putRecord(invoiceRef(), records.MapRecord{"amount": 1500.0})

		started, err = h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		assert.Len(t, started, 1)
	})

	t.Run("guard evaluation error skips the process", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(true, models.TriggerOnCreate, "record.missing > 1"))
		h.putRecord(invoiceRef(), records.MapRecord{"amount": 500.0})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		assert.Empty(t, started)
	})

	t.Run("one failing candidate does not block others", func(t *testing.T) {
		h := newHarness(t)

		// First candidate has no start node and cannot start; the second is
		// healthy. Listing order is by file name, so force it with IDs.
		broken := triggered(true, models.TriggerOnCreate, "")
		broken.ID = "proc-aaaa"
		assemble(t, broken, []*models.Node{node("end", models.NodeTypeEnd)}, nil)
		h.saveProcess(t, broken)

		healthy := triggered(true, models.TriggerOnCreate, "")
		healthy.ID = "proc-bbbb"
		wire(t, h, healthy)

		h.putRecord(invoiceRef(), records.MapRecord{})

		started, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "inv-1")
		require.NoError(t, err)
		require.Len(t, started, 1)
		assert.Equal(t, healthy.ID, started[0].ProcessID)
	})

	t.Run("missing record fails the evaluation", func(t *testing.T) {
		h := newHarness(t)
		wire(t, h, triggered(true, models.TriggerOnCreate, ""))

		_, err := h.engine.EvaluateTriggers(ctx, "invoice", models.TriggerOnCreate, "ghost")
		assert.Error(t, err)
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Resolver: records.NewMapResolver()})
	assert.Error(t, err)

	_, err = New(Config{Persistence: file.NewPersistence(t.TempDir())})
	assert.Error(t, err)
}
