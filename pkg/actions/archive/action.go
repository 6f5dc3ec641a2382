// Package archive provides an auto-action that archives the instance's
// target record through the host's record mutation capability.
package archive

import (
	"context"
	"fmt"

	"github.com/procwise/procwise/pkg/protocol"
	"github.com/procwise/procwise/pkg/records"
)

type Factory struct {
	mutator records.Mutator
}

func NewFactory(mutator records.Mutator) *Factory {
	return &Factory{mutator: mutator}
}

func (f *Factory) ID() string {
	return "archive"
}

func (f *Factory) Create(_ map[string]any) (protocol.AutoAction, error) {
	return &Action{mutator: f.mutator}, nil
}

type Action struct {
	mutator records.Mutator
}

func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) error {
	err := a.mutator.Archive(ctx, actionCtx.Target)
	if err != nil {
		return fmt.Errorf("failed to archive %s/%s: %w", actionCtx.Target.Type, actionCtx.Target.ID, err)
	}

	if actionCtx.Logger != nil {
		actionCtx.Logger.InfoContext(ctx, "Record archived",
			"target_type", actionCtx.Target.Type, "target_id", actionCtx.Target.ID)
	}

	return nil
}
