package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/channels/gochannel"
	"github.com/procwise/procwise/pkg/engine"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/persistence/file"
	"github.com/procwise/procwise/pkg/records"
)

type gatewayFixture struct {
	bus         eventbus.EventBus
	persistence persistence.Persistence
	process     *models.Process
}

// The test channel blocks each publish until the subscriber acks, so the
// trigger evaluation has finished by the time Publish returns.
func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	store := file.NewPersistence(t.TempDir())

	resolver := records.NewMapResolver()
	resolver.Put(models.TargetRef{Type: "invoice", ID: "inv-1"}, records.MapRecord{"amount": 1500.0})

	eng, err := engine.New(engine.Config{
		Logger:      logger,
		Persistence: store,
		Resolver:    resolver,
		Mutator:     resolver,
	})
	require.NoError(t, err)

	process := models.NewProcess("auto invoice", "invoice", "owner-1")
	process.Active = true
	process.Trigger = &models.TriggerPolicy{Enabled: true, On: models.TriggerOnCreate}
	require.NoError(t, process.AddNode(&models.Node{ID: "start", Name: "Start", Type: models.NodeTypeStart}))
	require.NoError(t, process.AddNode(&models.Node{ID: "end", Name: "End", Type: models.NodeTypeEnd}))
	require.NoError(t, process.AddEdge(&models.Edge{ID: "e1", SourceID: "start", TargetID: "end", Condition: models.Always()}))
	require.NoError(t, store.ProcessRepository().SaveProcess(ctx, process))

	gw := NewTriggerGateway(logger, eng, bus)
	require.NoError(t, gw.Start(ctx))

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return &gatewayFixture{bus: bus, persistence: store, process: process}
}

func mutation(entityType, entityID string, op models.TriggerEvent) events.EntityMutated {
	return events.EntityMutated{
		BaseEvent:  events.NewBaseEvent(events.EntityMutatedEvent),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
	}
}

func TestGateway_EntityMutationStartsInstance(t *testing.T) {
	ctx := context.Background()
	f := setupGateway(t)

	err := f.bus.Publish(ctx, "invoice/inv-1", mutation("invoice", "inv-1", models.TriggerOnCreate))
	require.NoError(t, err)

	instances, err := f.persistence.InstanceRepository().InstancesByProcess(ctx, f.process.ID)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.StateCompleted, instances[0].State)
	assert.Equal(t, models.TargetRef{Type: "invoice", ID: "inv-1"}, instances[0].Target)
}

func TestGateway_EventMismatchStartsNothing(t *testing.T) {
	ctx := context.Background()
	f := setupGateway(t)

	err := f.bus.Publish(ctx, "invoice/inv-1", mutation("invoice", "inv-1", models.TriggerOnWrite))
	require.NoError(t, err)

	instances, err := f.persistence.InstanceRepository().InstancesByProcess(ctx, f.process.ID)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestGateway_InvalidEventIsDropped(t *testing.T) {
	ctx := context.Background()
	f := setupGateway(t)

	// Missing entity ID: dropped without retry, and nothing starts.
	err := f.bus.Publish(ctx, "invoice/", mutation("invoice", "", models.TriggerOnCreate))
	require.NoError(t, err)

	instances, err := f.persistence.InstanceRepository().Instances(ctx)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestGateway_UnrelatedEntityTypeStartsNothing(t *testing.T) {
	ctx := context.Background()
	f := setupGateway(t)

	err := f.bus.Publish(ctx, "order/ord-1", mutation("order", "ord-1", models.TriggerOnCreate))
	require.NoError(t, err)

	instances, err := f.persistence.InstanceRepository().Instances(ctx)
	require.NoError(t, err)
	assert.Empty(t, instances)
}
