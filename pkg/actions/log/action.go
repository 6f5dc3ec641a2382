// Package log provides an auto-action that writes a structured log line
// when its node is entered. Useful for tracing workflows in development.
package log

import (
	"context"
	"log/slog"

	"github.com/procwise/procwise/pkg/protocol"
)

type Factory struct{}

func (f *Factory) ID() string {
	return "log"
}

func (f *Factory) Create(config map[string]any) (protocol.AutoAction, error) {
	message, _ := config["message"].(string)
	if message == "" {
		message = "node entered"
	}

	level, _ := config["level"].(string)

	return &Action{message: message, level: level}, nil
}

type Action struct {
	message string
	level   string
}

func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) error {
	logger := actionCtx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"instance_id", actionCtx.InstanceID,
		"node_id", actionCtx.NodeID,
		"node_name", actionCtx.NodeName,
		"target_type", actionCtx.Target.Type,
		"target_id", actionCtx.Target.ID,
	}

	switch a.level {
	case "debug":
		logger.DebugContext(ctx, a.message, attrs...)
	case "warn":
		logger.WarnContext(ctx, a.message, attrs...)
	default:
		logger.InfoContext(ctx, a.message, attrs...)
	}

	return nil
}
