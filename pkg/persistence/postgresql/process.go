package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

// ProcessRepository handles process-related database operations.
type ProcessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewProcessRepository(db *sql.DB, logger *slog.Logger) *ProcessRepository {
	return &ProcessRepository{db: db, logger: logger}
}

const processColumns = `
	id
  , name
  , description
  , target_type
  , version
  , active
  , trigger_policy
  , definition
  , nodes
  , edges
  , owner
  , created_at
  , updated_at
`

func (r *ProcessRepository) Processes(ctx context.Context) ([]*models.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes ORDER BY created_at DESC`

	return r.queryProcesses(ctx, query)
}

func (r *ProcessRepository) ProcessesByTargetType(ctx context.Context, targetType string) ([]*models.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE target_type = $1 ORDER BY created_at DESC`

	return r.queryProcesses(ctx, query, targetType)
}

func (r *ProcessRepository) queryProcesses(ctx context.Context, query string, args ...any) ([]*models.Process, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	processes := make([]*models.Process, 0)

	for rows.Next() {
		process, err := r.scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}

		processes = append(processes, process)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating processes: %w", err)
	}

	return processes, nil
}

func (r *ProcessRepository) ProcessByID(ctx context.Context, id string) (*models.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE id = $1`

	process, err := r.scanProcess(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrProcessNotFound, id)
		}

		return nil, fmt.Errorf("failed to scan process: %w", err)
	}

	return process, nil
}

// SaveProcess upserts the whole process row, graph included.
func (r *ProcessRepository) SaveProcess(ctx context.Context, process *models.Process) error {
	now := time.Now().UTC()
	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	process.UpdatedAt = now

	triggerJSON, err := nullableJSON(process.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger policy: %w", err)
	}

	nodesJSON, err := json.Marshal(process.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(process.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO processes (
			id, name, description, target_type, version, active,
			trigger_policy, definition, nodes, edges, owner, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			target_type = EXCLUDED.target_type,
			version = EXCLUDED.version,
			active = EXCLUDED.active,
			trigger_policy = EXCLUDED.trigger_policy,
			definition = EXCLUDED.definition,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		process.ID, process.Name, process.Description, process.TargetType,
		process.Version, process.Active, triggerJSON, nullableRaw(process.Definition),
		nodesJSON, edgesJSON, process.Owner, process.CreatedAt, process.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save process %s: %w", process.ID, err)
	}

	return nil
}

func (r *ProcessRepository) DeleteProcess(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM processes WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete process %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ProcessRepository) scanProcess(row rowScanner) (*models.Process, error) {
	var (
		process     models.Process
		triggerJSON []byte
		definition  []byte
		nodesJSON   []byte
		edgesJSON   []byte
	)

	err := row.Scan(
		&process.ID, &process.Name, &process.Description, &process.TargetType,
		&process.Version, &process.Active, &triggerJSON, &definition,
		&nodesJSON, &edgesJSON, &process.Owner, &process.CreatedAt, &process.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(triggerJSON) > 0 {
		if err := json.Unmarshal(triggerJSON, &process.Trigger); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger policy: %w", err)
		}
	}

	if len(definition) > 0 {
		process.Definition = json.RawMessage(definition)
	}

	if err := json.Unmarshal(nodesJSON, &process.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &process.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	return &process, nil
}

// nullableJSON marshals v, mapping nil pointers to SQL NULL.
func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	if trigger, ok := v.(*models.TriggerPolicy); ok && trigger == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	return []byte(raw)
}
