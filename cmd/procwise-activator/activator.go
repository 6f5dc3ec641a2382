package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/procwise/procwise/pkg/cmd"
	"github.com/procwise/procwise/pkg/engine"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/gateway"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/records"
	"github.com/procwise/procwise/pkg/sweeper"
)

// ActivatorConfig carries the optional service features.
type ActivatorConfig struct {
	RedisQueue     string
	RedisAddr      string
	SweepSchedule  string
	SweepThreshold time.Duration
}

// Activator hosts the trigger gateway, the optional Redis entity-event
// source and the stale-instance sweeper in one long-running service.
type Activator struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	config      ActivatorConfig
}

func NewActivator(
	id string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	config ActivatorConfig,
) *Activator {
	return &Activator{
		id:          id,
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		tracer:      tracer,
		config:      config,
	}
}

// Run starts all components and blocks until SIGINT or SIGTERM.
func (a *Activator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver := records.NewMapResolver()

	eng, err := engine.New(engine.Config{
		Logger:      a.logger,
		Persistence: a.persistence,
		Resolver:    resolver,
		Mutator:     resolver,
		Registry:    cmd.NewRegistry(a.logger, resolver, nil),
		Publisher:   a.eventBus,
		Tracer:      a.tracer,
	})
	if err != nil {
		return err
	}

	triggerGateway := gateway.NewTriggerGateway(a.logger, eng, a.eventBus)
	if err := triggerGateway.Start(ctx); err != nil {
		return err
	}

	if a.config.RedisQueue != "" {
		source, err := gateway.NewRedisSource(ctx, a.logger, a.eventBus, gateway.RedisSourceConfig{
			Addr:  a.config.RedisAddr,
			Queue: a.config.RedisQueue,
		})
		if err != nil {
			return err
		}

		if err := source.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := source.Stop(ctx); err != nil {
				a.logger.ErrorContext(ctx, "Failed to stop Redis source", "error", err)
			}
		}()
	}

	sweep := sweeper.New(a.logger, a.persistence, a.config.SweepSchedule, a.config.SweepThreshold)
	if err := sweep.Start(ctx); err != nil {
		return err
	}

	defer sweep.Stop()

	a.logger.InfoContext(ctx, "Activator running")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		a.logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	return nil
}
