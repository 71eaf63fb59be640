package messaging

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
)

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, channel string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.logger.Info("event published",
		zap.String("channel", channel),
		zap.String("event", event.MessageName()),
		zap.ByteString("payload", payload),
	)
	return nil
}
