// Package persistence provides the storage abstraction for process
// definitions and their instances.
package persistence

import (
	"context"
	"errors"

	"github.com/procwise/procwise/pkg/models"
)

var (
	ErrProcessNotFound  = errors.New("process not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

func IsProcessNotFound(err error) bool {
	return errors.Is(err, ErrProcessNotFound)
}

func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// ProcessRepository stores process definitions. A process is saved as a
// whole, nodes and edges included; partial graph updates are a service-layer
// concern.
type ProcessRepository interface {
	Processes(ctx context.Context) ([]*models.Process, error)
	ProcessByID(ctx context.Context, id string) (*models.Process, error)

	// ProcessesByTargetType returns the processes bound to one target entity
	// type, used by trigger evaluation.
	ProcessesByTargetType(ctx context.Context, targetType string) ([]*models.Process, error)

	SaveProcess(ctx context.Context, process *models.Process) error
	DeleteProcess(ctx context.Context, id string) error
}

// InstanceRepository stores executions.
type InstanceRepository interface {
	Instances(ctx context.Context) ([]*models.Instance, error)
	InstanceByID(ctx context.Context, id string) (*models.Instance, error)

	// InstancesByProcess lists the executions of one process.
	InstancesByProcess(ctx context.Context, processID string) ([]*models.Instance, error)

	// InstancesByTarget lists the executions bound to one record, letting
	// hosts enforce their duplicate-instance rules.
	InstancesByTarget(ctx context.Context, target models.TargetRef) ([]*models.Instance, error)

	SaveInstance(ctx context.Context, instance *models.Instance) error
	DeleteInstance(ctx context.Context, id string) error
}

type Persistence interface {
	ProcessRepository() ProcessRepository
	InstanceRepository() InstanceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
