package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/allocation/internal/core/domain"
)

const (
	batchTimeout = 10 * time.Millisecond
	batchSize    = 100
)

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event to the topic named by its channel.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(broker string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           batchTimeout,
		BatchSize:              batchSize,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, channel string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.MessageName(), err)
	}

	msg := kafka.Message{
		Topic: channel,
		Key:   []byte(messageKey(event)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.MessageName())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.MessageName(), channel, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// messageKey keeps every event of one order on the same partition.
func messageKey(event domain.Event) string {
	switch e := event.(type) {
	case domain.Allocated:
		return e.OrderID
	case domain.Deallocated:
		return e.OrderID
	case domain.OutOfStock:
		return e.SKU
	default:
		return ""
	}
}
