package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/template"
	"github.com/procwise/procwise/pkg/validation"
)

// ErrProcessNotFound is returned when a process is not found.
var ErrProcessNotFound = persistence.ErrProcessNotFound

// Process is the service over process definitions: CRUD, graph validation,
// activation and template import/export.
type Process struct {
	persistence persistence.Persistence
	validator   *validation.Validator
}

// NewProcess creates a new process service.
func NewProcess(persistence persistence.Persistence, validator *validation.Validator) *Process {
	if validator == nil {
		validator = validation.New(validation.ModeLegacy)
	}

	return &Process{
		persistence: persistence,
		validator:   validator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Process) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListProcessesRequest filters the process listing.
type ListProcessesRequest struct {
	TargetType string
	ActiveOnly bool
}

// List retrieves process definitions, optionally filtered.
func (s *Process) List(ctx context.Context, req ListProcessesRequest) ([]*models.Process, error) {
	var (
		processes []*models.Process
		err       error
	)

	if req.TargetType != "" {
		processes, err = s.persistence.ProcessRepository().ProcessesByTargetType(ctx, req.TargetType)
	} else {
		processes, err = s.persistence.ProcessRepository().Processes(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	if !req.ActiveOnly {
		return processes, nil
	}

	active := make([]*models.Process, 0, len(processes))

	for _, process := range processes {
		if process.Active {
			active = append(active, process)
		}
	}

	return active, nil
}

// FetchByID retrieves a process by its ID.
func (s *Process) FetchByID(ctx context.Context, id string) (*models.Process, error) {
	return s.persistence.ProcessRepository().ProcessByID(ctx, id)
}

// Create adds a new process definition. New processes are always inactive:
// activation is a separate, validated step.
func (s *Process) Create(ctx context.Context, process *models.Process) (*models.Process, error) {
	if process == nil {
		return nil, ErrProcessNil
	}

	if strings.TrimSpace(process.Name) == "" {
		return nil, ErrNameRequired
	}

	if strings.TrimSpace(process.TargetType) == "" {
		return nil, ErrTargetTypeRequired
	}

	created := models.NewProcess(process.Name, process.TargetType, process.Owner)
	created.Description = process.Description
	created.Trigger = process.Trigger
	created.Definition = process.Definition

	for _, node := range process.Nodes {
		if err := created.AddNode(node); err != nil {
			return nil, NewValidationError("Create", "INVALID_GRAPH", err.Error(), ErrGraphInvalid)
		}
	}

	for _, edge := range process.Edges {
		if err := created.AddEdge(edge); err != nil {
			return nil, NewValidationError("Create", "INVALID_GRAPH", err.Error(), ErrGraphInvalid)
		}
	}

	if err := s.persistence.ProcessRepository().SaveProcess(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create process: %w", err)
	}

	return created, nil
}

// Update modifies an existing process. Graph changes are refused while the
// process has non-terminal instances: a running instance must never see its
// definition shift underneath it.
func (s *Process) Update(ctx context.Context, processID string, process *models.Process) (*models.Process, error) {
	if process == nil {
		return nil, ErrProcessNil
	}

	existing, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}

	if graphChanged(existing, process) {
		busy, err := s.hasNonTerminalInstances(ctx, processID)
		if err != nil {
			return nil, err
		}

		if busy {
			return nil, fmt.Errorf("%w: %s", ErrProcessInUse, processID)
		}
	}

	process.ID = processID
	process.CreatedAt = existing.CreatedAt
	process.Version = existing.Version

	if err := s.persistence.ProcessRepository().SaveProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("failed to update process: %w", err)
	}

	return process, nil
}

// Delete removes a process. Refused while non-terminal instances reference
// it.
func (s *Process) Delete(ctx context.Context, processID string) error {
	if _, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID); err != nil {
		return err
	}

	busy, err := s.hasNonTerminalInstances(ctx, processID)
	if err != nil {
		return err
	}

	if busy {
		return fmt.Errorf("%w: %s", ErrProcessInUse, processID)
	}

	if err := s.persistence.ProcessRepository().DeleteProcess(ctx, processID); err != nil {
		return fmt.Errorf("failed to delete process: %w", err)
	}

	return nil
}

// Validate runs graph validation without touching the stored process.
func (s *Process) Validate(ctx context.Context, processID string) (validation.Result, error) {
	process, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID)
	if err != nil {
		return validation.Result{}, err
	}

	return s.validator.Validate(process), nil
}

// Activate validates the graph and marks the process active. Activation is
// the gate where structural errors become blocking.
func (s *Process) Activate(ctx context.Context, processID string) (*models.Process, error) {
	process, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}

	result := s.validator.Validate(process)
	if !result.Valid {
		messages := make([]string, 0, len(result.Errors()))
		for _, finding := range result.Errors() {
			messages = append(messages, finding.Message)
		}

		return nil, NewValidationError("Activate", "INVALID_GRAPH",
			strings.Join(messages, "; "), ErrGraphInvalid)
	}

	process.Active = true

	if err := s.persistence.ProcessRepository().SaveProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("failed to activate process: %w", err)
	}

	return process, nil
}

// Deactivate marks the process inactive. Running instances keep running;
// only new starts are refused.
func (s *Process) Deactivate(ctx context.Context, processID string) (*models.Process, error) {
	process, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}

	process.Active = false

	if err := s.persistence.ProcessRepository().SaveProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("failed to deactivate process: %w", err)
	}

	return process, nil
}

// ApplyDefinition replaces the process graph from a schema-validated
// definition blob, under the same in-use guard as manual graph edits.
func (s *Process) ApplyDefinition(ctx context.Context, processID string, raw []byte) (*models.Process, error) {
	process, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}

	busy, err := s.hasNonTerminalInstances(ctx, processID)
	if err != nil {
		return nil, err
	}

	if busy {
		return nil, fmt.Errorf("%w: %s", ErrProcessInUse, processID)
	}

	definition, err := template.Parse(raw)
	if err != nil {
		return nil, NewValidationError("ApplyDefinition", "INVALID_DEFINITION", err.Error(), ErrGraphInvalid)
	}

	if err := definition.Apply(process, raw); err != nil {
		return nil, NewValidationError("ApplyDefinition", "INVALID_DEFINITION", err.Error(), ErrGraphInvalid)
	}

	if err := s.persistence.ProcessRepository().SaveProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("failed to save process definition: %w", err)
	}

	return process, nil
}

// ExportDefinition renders the process graph as a definition blob.
func (s *Process) ExportDefinition(ctx context.Context, processID string) ([]byte, error) {
	process, err := s.persistence.ProcessRepository().ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}

	return template.Export(process)
}

func (s *Process) hasNonTerminalInstances(ctx context.Context, processID string) (bool, error) {
	instances, err := s.persistence.InstanceRepository().InstancesByProcess(ctx, processID)
	if err != nil {
		return false, fmt.Errorf("failed to list process instances: %w", err)
	}

	for _, instance := range instances {
		if !instance.IsTerminal() {
			return true, nil
		}
	}

	return false, nil
}

// graphChanged compares the structural part of two processes.
func graphChanged(before, after *models.Process) bool {
	beforeNodes, _ := json.Marshal(before.Nodes)
	afterNodes, _ := json.Marshal(after.Nodes)

	if !bytes.Equal(beforeNodes, afterNodes) {
		return true
	}

	beforeEdges, _ := json.Marshal(before.Edges)
	afterEdges, _ := json.Marshal(after.Edges)

	return !bytes.Equal(beforeEdges, afterEdges)
}
