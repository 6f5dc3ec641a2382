// Package notify provides an auto-action that sends a notification through
// the host's notifier when its node is entered.
package notify

import (
	"context"
	"fmt"

	"github.com/procwise/procwise/pkg/protocol"
)

type Factory struct {
	notifier protocol.Notifier
}

func NewFactory(notifier protocol.Notifier) *Factory {
	return &Factory{notifier: notifier}
}

func (f *Factory) ID() string {
	return "notify"
}

func (f *Factory) Create(config map[string]any) (protocol.AutoAction, error) {
	userID, _ := config["user_id"].(string)
	address, _ := config["address"].(string)

	if userID == "" && address == "" {
		return nil, fmt.Errorf("notify action requires a user_id or address")
	}

	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	return &Action{
		notifier: f.notifier,
		notification: protocol.Notification{
			UserID:  userID,
			Address: address,
			Subject: subject,
			Body:    body,
		},
	}, nil
}

type Action struct {
	notifier     protocol.Notifier
	notification protocol.Notification
}

func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) error {
	notification := a.notification
	if notification.Subject == "" {
		notification.Subject = "Process step reached: " + actionCtx.NodeName
	}

	return a.notifier.Notify(ctx, notification)
}
