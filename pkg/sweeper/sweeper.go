// Package sweeper periodically reports instances that stopped moving:
// running instances whose last update is older than a threshold. Reporting
// is observational only; advancing a blocked instance stays a deliberate
// operator action.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

type Sweeper struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	schedule    string
	threshold   time.Duration
	cron        *cron.Cron
}

// New creates a sweeper with a cron schedule and a staleness threshold.
func New(logger *slog.Logger, p persistence.Persistence, schedule string, threshold time.Duration) *Sweeper {
	if schedule == "" {
		schedule = "*/15 * * * *"
	}

	if threshold <= 0 {
		threshold = 24 * time.Hour
	}

	return &Sweeper{
		logger:      logger.With("module", "sweeper"),
		persistence: p,
		schedule:    schedule,
		threshold:   threshold,
	}
}

// Start schedules the sweep. It returns immediately; sweeps run until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		stale, err := s.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)

			return
		}

		for _, instance := range stale {
			s.logger.WarnContext(ctx, "Stale running instance",
				"instance_id", instance.ID,
				"process_id", instance.ProcessID,
				"current_node_id", instance.CurrentNodeID,
				"updated_at", instance.UpdatedAt,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "schedule", s.schedule, "threshold", s.threshold)

	return nil
}

// Sweep returns the running instances untouched for longer than the
// threshold.
func (s *Sweeper) Sweep(ctx context.Context) ([]*models.Instance, error) {
	instances, err := s.persistence.InstanceRepository().Instances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.threshold)
	stale := make([]*models.Instance, 0)

	for _, instance := range instances {
		if instance.State == models.StateRunning && instance.UpdatedAt.Before(cutoff) {
			stale = append(stale, instance)
		}
	}

	return stale, nil
}

// Stop halts scheduled sweeps, waiting for a sweep in flight.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}
