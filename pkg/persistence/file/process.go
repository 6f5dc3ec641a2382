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

// ProcessRepository stores process definitions as JSON files under
// <root>/processes.
type ProcessRepository struct {
	root string
}

func NewProcessRepository(root string) *ProcessRepository {
	return &ProcessRepository{root: root}
}

func (r *ProcessRepository) dir() string {
	return path.Join(r.root, "processes")
}

// Processes returns all stored processes, newest first.
func (r *ProcessRepository) Processes(ctx context.Context) ([]*models.Process, error) {
	jsonFiles, err := fs.Glob(os.DirFS(r.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list process files: %w", err)
	}

	processes := make([]*models.Process, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		process, err := r.ProcessByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		processes = append(processes, process)
	}

	sort.Slice(processes, func(i, j int) bool {
		return processes[i].CreatedAt.After(processes[j].CreatedAt)
	})

	return processes, nil
}

// ProcessByID reads one process document.
func (r *ProcessRepository) ProcessByID(_ context.Context, id string) (*models.Process, error) {
	filePath := filepath.Clean(path.Join(r.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrProcessNotFound, id)
		}

		return nil, fmt.Errorf("failed to read process %s: %w", id, err)
	}

	var process models.Process

	err = json.Unmarshal(body, &process)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal process %s: %w", id, err)
	}

	return &process, nil
}

func (r *ProcessRepository) ProcessesByTargetType(ctx context.Context, targetType string) ([]*models.Process, error) {
	all, err := r.Processes(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Process, 0)

	for _, process := range all {
		if process.TargetType == targetType {
			matched = append(matched, process)
		}
	}

	return matched, nil
}

// SaveProcess writes the whole process document, nodes and edges included.
func (r *ProcessRepository) SaveProcess(_ context.Context, process *models.Process) error {
	err := os.MkdirAll(r.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create processes directory: %w", err)
	}

	now := time.Now().UTC()
	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	process.UpdatedAt = now

	data, err := json.MarshalIndent(process, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal process %s: %w", process.ID, err)
	}

	return os.WriteFile(path.Join(r.dir(), process.ID+".json"), data, 0600)
}

// DeleteProcess removes a process document. Deleting a missing process is
// not an error.
func (r *ProcessRepository) DeleteProcess(_ context.Context, id string) error {
	err := os.Remove(path.Join(r.dir(), id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete process %s: %w", id, err)
	}

	return nil
}
