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

// InstanceRepository handles instance-related database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , name
  , process_id
  , target_type
  , target_id
  , state
  , current_node_id
  , history
  , end_outcome
  , started_at
  , ended_at
  , owner
  , error_log
  , created_at
  , updated_at
`

func (r *InstanceRepository) Instances(ctx context.Context) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC`

	return r.queryInstances(ctx, query)
}

func (r *InstanceRepository) InstancesByProcess(ctx context.Context, processID string) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE process_id = $1 ORDER BY created_at DESC`

	return r.queryInstances(ctx, query, processID)
}

func (r *InstanceRepository) InstancesByTarget(ctx context.Context, target models.TargetRef) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE target_type = $1 AND target_id = $2 ORDER BY created_at DESC`

	return r.queryInstances(ctx, query, target.Type, target.ID)
}

func (r *InstanceRepository) queryInstances(ctx context.Context, query string, args ...any) ([]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.Instance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) InstanceByID(ctx context.Context, id string) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrInstanceNotFound, id)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.Instance) error {
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}

	historyJSON, err := json.Marshal(instance.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	errorLogJSON, err := json.Marshal(instance.ErrorLog)
	if err != nil {
		return fmt.Errorf("failed to marshal error log: %w", err)
	}

	query := `
		INSERT INTO instances (
			id, name, process_id, target_type, target_id, state,
			current_node_id, history, end_outcome, started_at, ended_at,
			owner, error_log, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			current_node_id = EXCLUDED.current_node_id,
			history = EXCLUDED.history,
			end_outcome = EXCLUDED.end_outcome,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			error_log = EXCLUDED.error_log,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.Name, instance.ProcessID,
		instance.Target.Type, instance.Target.ID, instance.State,
		instance.CurrentNodeID, historyJSON, string(instance.EndOutcome),
		instance.StartedAt, instance.EndedAt, instance.Owner, errorLogJSON,
		instance.CreatedAt, instance.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) DeleteInstance(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM instances WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}

	return nil
}

func (r *InstanceRepository) scanInstance(row rowScanner) (*models.Instance, error) {
	var (
		instance     models.Instance
		historyJSON  []byte
		errorLogJSON []byte
		endOutcome   string
		startedAt    sql.NullTime
		endedAt      sql.NullTime
	)

	err := row.Scan(
		&instance.ID, &instance.Name, &instance.ProcessID,
		&instance.Target.Type, &instance.Target.ID, &instance.State,
		&instance.CurrentNodeID, &historyJSON, &endOutcome,
		&startedAt, &endedAt, &instance.Owner, &errorLogJSON,
		&instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return nil, err
	}

	instance.EndOutcome = models.EndOutcome(endOutcome)

	if startedAt.Valid {
		instance.StartedAt = &startedAt.Time
	}

	if endedAt.Valid {
		instance.EndedAt = &endedAt.Time
	}

	if err := json.Unmarshal(historyJSON, &instance.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	if err := json.Unmarshal(errorLogJSON, &instance.ErrorLog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error log: %w", err)
	}

	return &instance, nil
}
