// Package engine executes process instances: it owns the instance state
// machine, transition selection, side-effect dispatch and trigger
// evaluation. Persistence, record access, notifications and authorization
// are all injected collaborators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/procwise/procwise/pkg/conditions"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/protocol"
	"github.com/procwise/procwise/pkg/records"
	"github.com/procwise/procwise/pkg/registry"
)

// Config wires an Engine. Persistence and Resolver are required; everything
// else degrades gracefully when absent.
type Config struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Resolver    records.Resolver

	// Mutator is needed only for the archive end action.
	Mutator records.Mutator

	Evaluator  *conditions.Evaluator
	Registry   *registry.Registry
	Notifier   protocol.Notifier
	Authorizer protocol.Authorizer
	Publisher  eventbus.EventPublisher
	Tracer     trace.Tracer
}

type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	resolver    records.Resolver
	mutator     records.Mutator
	evaluator   *conditions.Evaluator
	registry    *registry.Registry
	notifier    protocol.Notifier
	authorizer  protocol.Authorizer
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer

	// locks serializes operations per instance ID.
	locks sync.Map
}

func New(cfg Config) (*Engine, error) {
	if cfg.Persistence == nil {
		return nil, errors.New("engine requires persistence")
	}

	if cfg.Resolver == nil {
		return nil, errors.New("engine requires a record resolver")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "engine")

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = conditions.NewEvaluator(logger, nil)
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.NewRegistry(logger)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	return &Engine{
		logger:      logger,
		persistence: cfg.Persistence,
		resolver:    cfg.Resolver,
		mutator:     cfg.Mutator,
		evaluator:   evaluator,
		registry:    reg,
		notifier:    cfg.Notifier,
		authorizer:  cfg.Authorizer,
		publisher:   cfg.Publisher,
		tracer:      tracer,
	}, nil
}

func (e *Engine) processes() persistence.ProcessRepository {
	return e.persistence.ProcessRepository()
}

func (e *Engine) instances() persistence.InstanceRepository {
	return e.persistence.InstanceRepository()
}

// CreateInstance creates a draft instance of an active process. The target
// record is not resolved here: a draft may be created ahead of the record
// becoming consistent, and resolution failures belong to the start.
func (e *Engine) CreateInstance(ctx context.Context, processID string, target models.TargetRef, owner string) (*models.Instance, error) {
	ctx, span := e.tracer.Start(ctx, "engine.create_instance",
		trace.WithAttributes(attribute.String("procwise.process.id", processID)))
	defer span.End()

	process, err := e.processes().ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}

	if !process.Active {
		return nil, fmt.Errorf("%w: %s", ErrProcessInactive, process.ID)
	}

	instance := models.NewInstance(process, target, owner)

	if err := e.instances().SaveInstance(ctx, instance); err != nil {
		return nil, err
	}

	e.logger.Info("Instance created",
		"instance_id", instance.ID, "process_id", process.ID,
		"target_type", target.Type, "target_id", target.ID)

	return instance, nil
}

// StartInstance moves a draft instance to running at the start node and
// immediately advances it as far as conditions allow.
func (e *Engine) StartInstance(ctx context.Context, instanceID string) (*models.Instance, error) {
	return e.withInstance(ctx, "start", instanceID, func(ctx context.Context, m *stateMachine) error {
		return m.start(ctx)
	})
}

// AdvanceInstance replays the advance loop on a running instance, typically
// after the condition that blocked it changed.
func (e *Engine) AdvanceInstance(ctx context.Context, instanceID string) (*models.Instance, error) {
	return e.withInstance(ctx, "advance", instanceID, func(ctx context.Context, m *stateMachine) error {
		return m.advance(ctx)
	})
}

// ValidateTask approves the pending manual task and resumes the advance.
func (e *Engine) ValidateTask(ctx context.Context, instanceID, userID string) (*models.Instance, error) {
	return e.withInstance(ctx, "validate_task", instanceID, func(ctx context.Context, m *stateMachine) error {
		return m.validateTask(ctx, userID)
	})
}

// RejectTask refuses the pending manual task, cancelling the instance. The
// rejection bypasses end nodes entirely: no end action runs.
func (e *Engine) RejectTask(ctx context.Context, instanceID, userID, reason string) (*models.Instance, error) {
	return e.withInstance(ctx, "reject_task", instanceID, func(ctx context.Context, m *stateMachine) error {
		return m.rejectTask(ctx, userID, reason)
	})
}

// CancelInstance cancels a draft or running instance.
func (e *Engine) CancelInstance(ctx context.Context, instanceID, reason string) (*models.Instance, error) {
	return e.withInstance(ctx, "cancel", instanceID, func(ctx context.Context, m *stateMachine) error {
		return m.cancel(ctx, reason)
	})
}

// withInstance serializes an operation on one instance, persists the result
// and records non-configuration failures on the instance's error log. The
// mutated instance is returned even on failure so callers can inspect where
// it stopped.
func (e *Engine) withInstance(ctx context.Context, op, instanceID string, fn func(ctx context.Context, m *stateMachine) error) (*models.Instance, error) {
	ctx, span := e.tracer.Start(ctx, "engine."+op,
		trace.WithAttributes(attribute.String("procwise.instance.id", instanceID)))
	defer span.End()

	mu := e.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	instance, err := e.instances().InstanceByID(ctx, instanceID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	process, err := e.processes().ProcessByID(ctx, instance.ProcessID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	machine := &stateMachine{
		engine:   e,
		process:  process,
		instance: instance,
		logger:   e.logger.With("instance_id", instance.ID, "process_id", process.ID),
	}

	opErr := fn(ctx, machine)
	if opErr != nil && !IsConfigurationError(opErr) && !IsAuthorizationError(opErr) {
		instance.RecordError(opErr.Error())
	}

	if err := e.instances().SaveInstance(ctx, instance); err != nil {
		if opErr == nil {
			opErr = err
		} else {
			e.logger.Error("Failed to persist instance after failed operation",
				"instance_id", instance.ID, "op", op, "error", err)
		}
	}

	if opErr != nil {
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())

		return instance, opErr
	}

	return instance, nil
}

func (e *Engine) lockFor(instanceID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(instanceID, &sync.Mutex{})

	return mu.(*sync.Mutex)
}

// publish is best-effort: lifecycle events are observability, not state.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.Warn("Failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

// notify is best-effort delivery through the host notifier.
func (e *Engine) notify(ctx context.Context, notification protocol.Notification) {
	if e.notifier == nil {
		return
	}

	if err := e.notifier.Notify(ctx, notification); err != nil {
		e.logger.Warn("Failed to deliver notification",
			"user_id", notification.UserID, "address", notification.Address, "error", err)
	}
}
