package services

import (
	"context"
	"fmt"

	"github.com/procwise/procwise/pkg/engine"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

// ErrInstanceNotFound is returned when an instance is not found.
var ErrInstanceNotFound = persistence.ErrInstanceNotFound

// Instance is the service over process executions. Lifecycle transitions are
// delegated to the engine; this layer only adds listing, progress derivation
// and cleanup rules.
type Instance struct {
	persistence persistence.Persistence
	engine      *engine.Engine
}

// NewInstance creates a new instance service.
func NewInstance(persistence persistence.Persistence, eng *engine.Engine) *Instance {
	return &Instance{
		persistence: persistence,
		engine:      eng,
	}
}

// ListInstancesRequest filters the instance listing.
type ListInstancesRequest struct {
	ProcessID string
	Target    *models.TargetRef
}

// List retrieves instances, optionally filtered by process or target record.
func (s *Instance) List(ctx context.Context, req ListInstancesRequest) ([]*models.Instance, error) {
	repo := s.persistence.InstanceRepository()

	switch {
	case req.Target != nil:
		return repo.InstancesByTarget(ctx, *req.Target)
	case req.ProcessID != "":
		return repo.InstancesByProcess(ctx, req.ProcessID)
	default:
		return repo.Instances(ctx)
	}
}

// FetchByID retrieves an instance by its ID.
func (s *Instance) FetchByID(ctx context.Context, id string) (*models.Instance, error) {
	return s.persistence.InstanceRepository().InstanceByID(ctx, id)
}

// Progress derives the instance's position percentage from its process's
// node count.
func (s *Instance) Progress(ctx context.Context, instance *models.Instance) (float64, error) {
	process, err := s.persistence.ProcessRepository().ProcessByID(ctx, instance.ProcessID)
	if err != nil {
		return 0, err
	}

	return instance.Progress(len(process.Nodes)), nil
}

// Create creates a draft instance of an active process.
func (s *Instance) Create(ctx context.Context, processID string, target models.TargetRef, owner string) (*models.Instance, error) {
	instance, err := s.engine.CreateInstance(ctx, processID, target, owner)
	if err != nil {
		if engine.IsConfigurationError(err) {
			return nil, fmt.Errorf("%w: %w", ErrProcessInactive, err)
		}

		return nil, err
	}

	return instance, nil
}

// Start moves a draft instance to running and advances it.
func (s *Instance) Start(ctx context.Context, instanceID string) (*models.Instance, error) {
	return s.engine.StartInstance(ctx, instanceID)
}

// Advance replays the advance loop on a running instance.
func (s *Instance) Advance(ctx context.Context, instanceID string) (*models.Instance, error) {
	return s.engine.AdvanceInstance(ctx, instanceID)
}

// ValidateTask approves a pending manual task as the given user.
func (s *Instance) ValidateTask(ctx context.Context, instanceID, userID string) (*models.Instance, error) {
	return s.engine.ValidateTask(ctx, instanceID, userID)
}

// RejectTask refuses a pending manual task, cancelling the instance.
func (s *Instance) RejectTask(ctx context.Context, instanceID, userID, reason string) (*models.Instance, error) {
	return s.engine.RejectTask(ctx, instanceID, userID, reason)
}

// Cancel cancels a draft or running instance.
func (s *Instance) Cancel(ctx context.Context, instanceID, reason string) (*models.Instance, error) {
	instance, err := s.engine.CancelInstance(ctx, instanceID, reason)
	if err != nil {
		if engine.IsConfigurationError(err) {
			return nil, fmt.Errorf("%w: %w", ErrInstanceTerminal, err)
		}

		return nil, err
	}

	return instance, nil
}

// Delete removes a terminal instance. Live instances must be cancelled
// first.
func (s *Instance) Delete(ctx context.Context, instanceID string) error {
	instance, err := s.persistence.InstanceRepository().InstanceByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if !instance.IsTerminal() && instance.State != models.StateDraft {
		return fmt.Errorf("%w: cancel instance %s before deleting", ErrInvalidRequest, instanceID)
	}

	return s.persistence.InstanceRepository().DeleteInstance(ctx, instanceID)
}
