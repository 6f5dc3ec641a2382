package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/records"
)

// EvaluateTriggers reacts to one entity mutation. Every active process bound
// to the entity type whose trigger policy covers the event and whose guard
// expression passes gets a fresh instance created and started. Candidate
// failures are isolated: one misbehaving process never keeps another from
// triggering.
func (e *Engine) EvaluateTriggers(ctx context.Context, entityType string, event models.TriggerEvent, entityID string) ([]*models.Instance, error) {
	ctx, span := e.tracer.Start(ctx, "engine.evaluate_triggers",
		trace.WithAttributes(
			attribute.String("procwise.entity.type", entityType),
			attribute.String("procwise.entity.id", entityID),
			attribute.String("procwise.entity.event", string(event)),
		))
	defer span.End()

	processes, err := e.processes().ProcessesByTargetType(ctx, entityType)
	if err != nil {
		return nil, err
	}

	target := models.TargetRef{Type: entityType, ID: entityID}
	started := make([]*models.Instance, 0)

	// The record snapshot is resolved once, lazily, and shared by all guard
	// evaluations.
	var record records.Record

	for _, process := range processes {
		if !process.Active || process.Trigger == nil || !process.Trigger.Enabled {
			continue
		}

		if !process.Trigger.On.Matches(event) {
			continue
		}

		if record == nil {
			record, err = e.resolver.Resolve(ctx, target)
			if err != nil {
				return started, err
			}
		}

		if guard := process.Trigger.Condition; guard != "" {
			satisfied, err := e.evaluator.Expression(guard, record)
			if err != nil {
				e.logger.Warn("Trigger guard failed, skipping process",
					"process_id", process.ID, "guard", guard, "error", err)

				continue
			}

			if !satisfied {
				continue
			}
		}

		instance, err := e.CreateInstance(ctx, process.ID, target, process.Owner)
		if err != nil {
			e.logger.Error("Failed to create triggered instance",
				"process_id", process.ID, "target_id", entityID, "error", err)

			continue
		}

		instance, err = e.StartInstance(ctx, instance.ID)
		if err != nil {
			e.logger.Error("Triggered instance failed to start",
				"process_id", process.ID, "instance_id", instance.ID, "error", err)

			continue
		}

		e.logger.Info("Process triggered",
			"process_id", process.ID, "instance_id", instance.ID,
			"entity_type", entityType, "entity_id", entityID, "event", event)

		started = append(started, instance)
	}

	return started, nil
}
