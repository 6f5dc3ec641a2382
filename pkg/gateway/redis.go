package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
)

// RedisSource bridges hosts that cannot publish to the event bus directly:
// they push entity mutation documents onto a Redis list and the source
// republishes them as entity.mutated events.
type RedisSource struct {
	queue     string
	client    redis.UniversalClient
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// RedisSourceConfig configures the Redis entity-event source.
type RedisSourceConfig struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

func NewRedisSource(ctx context.Context, logger *slog.Logger, publisher eventbus.EventPublisher, cfg RedisSourceConfig) (*RedisSource, error) {
	if cfg.Queue == "" {
		return nil, errors.New("redis source queue name is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSource{
		queue:     cfg.Queue,
		client:    client,
		publisher: publisher,
		logger: logger.With(
			"module", "redis_source",
			"queue", cfg.Queue,
		),
		stopCh: make(chan struct{}),
	}, nil
}

func (s *RedisSource) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting Redis entity-event source")

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *RedisSource) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Redis source stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping Redis source")

			return
		default:
			err := s.processMessage(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// entityMessage is the document hosts push onto the Redis list.
type entityMessage struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Operation  string `json:"operation"`
}

func (s *RedisSource) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, 1*time.Second, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var msg entityMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		s.logger.Warn("Dropping unparseable queue message", "error", err)

		return nil
	}

	event := events.EntityMutated{
		BaseEvent:  events.NewBaseEvent(events.EntityMutatedEvent),
		EntityType: msg.EntityType,
		EntityID:   msg.EntityID,
		Operation:  models.TriggerEvent(msg.Operation),
	}

	if err := event.Validate(); err != nil {
		s.logger.Warn("Dropping invalid entity message", "error", err)

		return nil
	}

	if err := s.publisher.Publish(ctx, msg.EntityType+"/"+msg.EntityID, event); err != nil {
		return fmt.Errorf("failed to publish entity mutation: %w", err)
	}

	return nil
}

func (s *RedisSource) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping Redis entity-event source")

	close(s.stopCh)
	s.wg.Wait()

	if err := s.client.Close(); err != nil {
		s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}
