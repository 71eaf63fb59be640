package port

import (
	"context"

	"github.com/rl1809/allocation/internal/core/domain"
)

type EventPublisher interface {
	// Publish sends the event as a JSON object of its fields
	Publish(ctx context.Context, channel string, event domain.Event) error
}

type Notifier interface {
	Send(ctx context.Context, destination, message string) error
}
