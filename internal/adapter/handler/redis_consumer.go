package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
)

const ChangeBatchQuantityChannel = "change_batch_quantity"

type changeBatchQuantityMessage struct {
	BatchRef string `json:"batchref"`
	Qty      *int   `json:"qty"`
}

// RedisConsumer turns messages on the change_batch_quantity channel into
// ChangeBatchQuantity commands.
type RedisConsumer struct {
	client *redis.Client
	bus    Dispatcher
	logger *zap.Logger
}

func NewRedisConsumer(client *redis.Client, bus Dispatcher, logger *zap.Logger) *RedisConsumer {
	return &RedisConsumer{client: client, bus: bus, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (c *RedisConsumer) Run(ctx context.Context) error {
	sub := c.client.Subscribe(ctx, ChangeBatchQuantityChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChangeBatchQuantityChannel, err)
	}
	c.logger.Info("redis consumer subscribed", zap.String("channel", ChangeBatchQuantityChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handleMessage(ctx, msg.Payload)
		}
	}
}

func (c *RedisConsumer) handleMessage(ctx context.Context, payload string) {
	var m changeBatchQuantityMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil || m.BatchRef == "" || m.Qty == nil {
		c.logger.Warn("skipping malformed message",
			zap.String("channel", ChangeBatchQuantityChannel),
			zap.String("payload", payload),
			zap.Error(err),
		)
		return
	}

	cmd := domain.ChangeBatchQuantity{Ref: m.BatchRef, Qty: *m.Qty}
	if _, err := c.bus.Handle(ctx, cmd); err != nil {
		c.logger.Error("change batch quantity failed",
			zap.String("batchref", m.BatchRef),
			zap.Int("qty", *m.Qty),
			zap.Error(err),
		)
	}
}
