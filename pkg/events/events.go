// Package events defines the typed events exchanged over the bus: entity
// mutations published by the host application and instance lifecycle
// notifications published by the engine.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/procwise/procwise/pkg/models"
)

type EventType string

// Topic is the bus topic all events travel on.
const Topic = "procwise.events"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Host-emitted after each create/write commit on a business entity.
	EntityMutatedEvent EventType = "entity.mutated"

	// Engine-emitted instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	NodeEnteredEvent       EventType = "instance.node.entered"
	TaskPendingEvent       EventType = "instance.task.pending"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceCancelledEvent EventType = "instance.cancelled"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EntityMutated announces that the host created or updated a business
// record. The trigger gateway consumes these to decide whether processes
// should start.
type EntityMutated struct {
	BaseEvent

	EntityType string              `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	Operation  models.TriggerEvent `json:"operation"` // create or write
}

func (e EntityMutated) GetType() EventType {
	return EntityMutatedEvent
}

// Validate checks the event carries enough to act on.
func (e EntityMutated) Validate() error {
	if e.EntityType == "" {
		return errors.New("entity event missing entity type")
	}

	if e.EntityID == "" {
		return errors.New("entity event missing entity id")
	}

	if e.Operation != models.TriggerOnCreate && e.Operation != models.TriggerOnWrite {
		return errors.New("entity event operation must be create or write")
	}

	return nil
}

type InstanceStarted struct {
	BaseEvent

	InstanceID string           `json:"instance_id"`
	ProcessID  string           `json:"process_id"`
	Target     models.TargetRef `json:"target"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type NodeEntered struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	ProcessID  string `json:"process_id"`
	NodeID     string `json:"node_id"`
	NodeName   string `json:"node_name"`
}

func (e NodeEntered) GetType() EventType {
	return NodeEnteredEvent
}

// TaskPending signals that an instance parked on a manual-validation node
// and waits for an authorized validate or reject.
type TaskPending struct {
	BaseEvent

	InstanceID      string `json:"instance_id"`
	ProcessID       string `json:"process_id"`
	NodeID          string `json:"node_id"`
	NodeName        string `json:"node_name"`
	AssigneeUserID  string `json:"assignee_user_id,omitempty"`
	AssigneeGroupID string `json:"assignee_group_id,omitempty"`
}

func (e TaskPending) GetType() EventType {
	return TaskPendingEvent
}

type InstanceCompleted struct {
	BaseEvent

	InstanceID string            `json:"instance_id"`
	ProcessID  string            `json:"process_id"`
	Outcome    models.EndOutcome `json:"outcome"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceCancelled struct {
	BaseEvent

	InstanceID string            `json:"instance_id"`
	ProcessID  string            `json:"process_id"`
	Outcome    models.EndOutcome `json:"outcome,omitempty"` // set when cancelled via a failure/cancelled end node
	Reason     string            `json:"reason,omitempty"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}
