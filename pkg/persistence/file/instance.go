package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

// InstanceRepository stores instances as JSON files under <root>/instances.
type InstanceRepository struct {
	root string
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (r *InstanceRepository) dir() string {
	return path.Join(r.root, "instances")
}

// Instances returns all stored instances, newest first.
func (r *InstanceRepository) Instances(ctx context.Context) ([]*models.Instance, error) {
	jsonFiles, err := fs.Glob(os.DirFS(r.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.Instance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		instance, err := r.InstanceByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	return instances, nil
}

func (r *InstanceRepository) InstanceByID(_ context.Context, id string) (*models.Instance, error) {
	filePath := filepath.Clean(path.Join(r.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrInstanceNotFound, id)
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	var instance models.Instance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", id, err)
	}

	return &instance, nil
}

func (r *InstanceRepository) InstancesByProcess(ctx context.Context, processID string) ([]*models.Instance, error) {
	return r.filter(ctx, func(i *models.Instance) bool {
		return i.ProcessID == processID
	})
}

func (r *InstanceRepository) InstancesByTarget(ctx context.Context, target models.TargetRef) ([]*models.Instance, error) {
	return r.filter(ctx, func(i *models.Instance) bool {
		return i.Target == target
	})
}

func (r *InstanceRepository) filter(ctx context.Context, keep func(*models.Instance) bool) ([]*models.Instance, error) {
	all, err := r.Instances(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Instance, 0)

	for _, instance := range all {
		if keep(instance) {
			matched = append(matched, instance)
		}
	}

	return matched, nil
}

func (r *InstanceRepository) SaveInstance(_ context.Context, instance *models.Instance) error {
	err := os.MkdirAll(r.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	return os.WriteFile(path.Join(r.dir(), instance.ID+".json"), data, 0600)
}

func (r *InstanceRepository) DeleteInstance(_ context.Context, id string) error {
	err := os.Remove(path.Join(r.dir(), id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}

	return nil
}
