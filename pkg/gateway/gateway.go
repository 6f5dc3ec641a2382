// Package gateway connects entity mutation feeds to trigger evaluation. The
// trigger gateway is the only consumer of entity.mutated events; the engine
// itself never watches records.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/procwise/procwise/pkg/engine"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
)

// TriggerGateway subscribes to entity.mutated events and asks the engine
// which processes should start in response.
type TriggerGateway struct {
	logger *slog.Logger
	engine *engine.Engine
	bus    eventbus.EventSubscriber
}

func NewTriggerGateway(logger *slog.Logger, eng *engine.Engine, bus eventbus.EventSubscriber) *TriggerGateway {
	return &TriggerGateway{
		logger: logger.With("module", "trigger_gateway"),
		engine: eng,
		bus:    bus,
	}
}

// Start registers the handler and begins consuming. It returns once the
// subscription is established; consumption runs until ctx is cancelled.
func (g *TriggerGateway) Start(ctx context.Context) error {
	err := g.bus.Handle(events.EntityMutatedEvent, g.handleEntityMutated)
	if err != nil {
		return fmt.Errorf("failed to register entity mutation handler: %w", err)
	}

	err = g.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	g.logger.InfoContext(ctx, "Trigger gateway started")

	return nil
}

func (g *TriggerGateway) handleEntityMutated(ctx context.Context, event any) error {
	mutation, ok := event.(*events.EntityMutated)
	if !ok {
		g.logger.Warn("Unexpected event payload for entity mutation", "event", fmt.Sprintf("%T", event))

		return nil
	}

	if err := mutation.Validate(); err != nil {
		// Malformed events are dropped, not retried: redelivery cannot fix
		// them.
		g.logger.Warn("Dropping invalid entity mutation event", "error", err)

		return nil
	}

	started, err := g.engine.EvaluateTriggers(ctx, mutation.EntityType, mutation.Operation, mutation.EntityID)
	if err != nil {
		g.logger.ErrorContext(ctx, "Trigger evaluation failed",
			"entity_type", mutation.EntityType, "entity_id", mutation.EntityID, "error", err)

		return err
	}

	if len(started) > 0 {
		g.logger.InfoContext(ctx, "Triggered instances",
			"entity_type", mutation.EntityType, "entity_id", mutation.EntityID, "count", len(started))
	}

	return nil
}
