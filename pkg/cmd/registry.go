package cmd

import (
	"log/slog"

	"github.com/procwise/procwise/pkg/actions/archive"
	logaction "github.com/procwise/procwise/pkg/actions/log"
	"github.com/procwise/procwise/pkg/actions/notify"
	"github.com/procwise/procwise/pkg/protocol"
	"github.com/procwise/procwise/pkg/records"
	"github.com/procwise/procwise/pkg/registry"
)

// NewRegistry builds a registry with the native auto-actions. Hosts add
// their own actions and code hooks on top.
func NewRegistry(logger *slog.Logger, mutator records.Mutator, notifier protocol.Notifier) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(&logaction.Factory{})

	if mutator != nil {
		reg.RegisterAction(archive.NewFactory(mutator))
	}

	if notifier != nil {
		reg.RegisterAction(notify.NewFactory(notifier))
	}

	return reg
}
