// Package registry holds the named auto-action factories and code hooks a
// host wires into the engine. Hooks are compile-time registered callbacks;
// there is no runtime code loading.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/procwise/procwise/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
	codeHooks       map[string]protocol.CodeHook
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
		codeHooks:       make(map[string]protocol.CodeHook),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

func (r *Registry) RegisterCodeHook(name string, hook protocol.CodeHook) {
	r.codeHooks[name] = hook
}

// CreateAction instantiates a registered action type with node-level
// configuration.
func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.AutoAction, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type %q not registered", actionType)
	}

	return factory.Create(config)
}

// CodeHook returns the hook registered under name.
func (r *Registry) CodeHook(name string) (protocol.CodeHook, error) {
	hook, ok := r.codeHooks[name]
	if !ok {
		return nil, fmt.Errorf("code hook %q not registered", name)
	}

	return hook, nil
}

// ActionTypes lists the registered action type IDs.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.actionFactories))
	for t := range r.actionFactories {
		types = append(types, t)
	}

	return types
}
