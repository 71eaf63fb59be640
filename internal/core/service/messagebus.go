package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

const (
	eventHandlerAttempts      = 3
	defaultEventRetryInterval = 100 * time.Millisecond
	tracerName                = "github.com/rl1809/allocation/messagebus"
)

// UnitOfWorkFactory returns a fresh unit of work for one Handle call.
type UnitOfWorkFactory func() port.UnitOfWork

// MessageBus dispatches a command and then every event the cascade raises,
// breadth first, until its queue is empty. Handle may be called concurrently;
// each call gets its own unit of work.
type MessageBus struct {
	registry      *Registry
	newUoW        UnitOfWorkFactory
	logger        *zap.Logger
	tracer        trace.Tracer
	retryInterval time.Duration
}

type Option func(*MessageBus)

func WithTracer(tracer trace.Tracer) Option {
	return func(b *MessageBus) { b.tracer = tracer }
}

// WithRetryInterval sets the first backoff delay between event handler attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(b *MessageBus) { b.retryInterval = d }
}

func NewMessageBus(registry *Registry, newUoW UnitOfWorkFactory, logger *zap.Logger, opts ...Option) *MessageBus {
	b := &MessageBus{
		registry:      registry,
		newUoW:        newUoW,
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
		retryInterval: defaultEventRetryInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle processes msg and everything it causes. A failing command aborts the
// loop and its error is returned; failing event handlers are retried and then
// logged and dropped. The result is the command handler's return value.
func (b *MessageBus) Handle(ctx context.Context, msg domain.Message) (string, error) {
	uow := b.newUoW()
	queue := []domain.Message{msg}
	var result string

	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]

		switch m := m.(type) {
		case domain.Command:
			res, err := b.handleCommand(ctx, m, uow)
			if err != nil {
				return "", err
			}
			result = res
			queue = enqueueEvents(queue, uow.CollectNewEvents())
		case domain.Event:
			queue = b.handleEvent(ctx, m, uow, queue)
		default:
			return "", fmt.Errorf("%T is neither a command nor an event", m)
		}
	}

	return result, nil
}

func (b *MessageBus) handleCommand(ctx context.Context, cmd domain.Command, uow port.UnitOfWork) (string, error) {
	ctx, span := b.tracer.Start(ctx, "command "+cmd.MessageName())
	defer span.End()

	b.logger.Debug("handling command", zap.String("command", cmd.MessageName()), zap.Any("payload", cmd))

	handler, err := b.registry.commandHandler(cmd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	result, err := handler(ctx, cmd, uow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("command failed", zap.String("command", cmd.MessageName()), zap.Error(err))
		return "", err
	}

	span.SetAttributes(attribute.String("allocation.result", result))
	return result, nil
}

// handleEvent runs every handler of evt in registration order, appending the
// events each one commits to the queue.
func (b *MessageBus) handleEvent(ctx context.Context, evt domain.Event, uow port.UnitOfWork, queue []domain.Message) []domain.Message {
	ctx, span := b.tracer.Start(ctx, "event "+evt.MessageName())
	defer span.End()

	for _, h := range b.registry.eventHandlers(evt) {
		logger := b.logger.With(zap.String("event", evt.MessageName()), zap.String("handler", h.name))
		logger.Debug("handling event", zap.Any("payload", evt))

		attempt := 0
		err := backoff.RetryNotify(func() error {
			attempt++
			err := h.handler(ctx, evt, uow)
			// a handler may commit and then fail; committed events still count
			queue = enqueueEvents(queue, uow.CollectNewEvents())
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}, b.eventBackOff(ctx), func(err error, wait time.Duration) {
			logger.Warn("event handler attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
		})
		if err != nil {
			span.RecordError(err)
			logger.Error("event handler gave up", zap.Int("attempts", attempt), zap.Error(err))
		}
	}

	return queue
}

func enqueueEvents(queue []domain.Message, events []domain.Event) []domain.Message {
	for _, evt := range events {
		queue = append(queue, evt)
	}
	return queue
}

func (b *MessageBus) eventBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.retryInterval
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, eventHandlerAttempts-1), ctx)
}
