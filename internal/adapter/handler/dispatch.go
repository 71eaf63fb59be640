package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrOutOfStock       = errors.New("out of stock")
	ErrInvalidETA       = errors.New("invalid eta")
	ErrNotFound         = errors.New("not found")
)

// Dispatcher hands a command to the message bus.
type Dispatcher interface {
	Handle(ctx context.Context, msg domain.Message) (string, error)
}

// allocator runs allocate commands, rejecting replayed request ids when an
// idempotency store is configured. A request id is only consumed by a
// command that completed; out of stock counts as completed.
type allocator struct {
	bus         Dispatcher
	idempotency port.IdempotencyStore
}

func (a allocator) allocate(ctx context.Context, requestID string, cmd domain.Allocate) (string, error) {
	key := "allocate:" + requestID
	claimed := false
	if requestID != "" && a.idempotency != nil {
		ok, err := a.idempotency.SetIdempotency(ctx, key)
		if err != nil {
			return "", fmt.Errorf("idempotency check: %w", err)
		}
		if !ok {
			return "", ErrDuplicateRequest
		}
		claimed = true
	}

	batchRef, err := a.bus.Handle(ctx, cmd)
	if err != nil {
		if claimed {
			// nothing was committed; the request id stays usable for a retry
			if releaseErr := a.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				err = errors.Join(err, fmt.Errorf("release request id %s: %w", requestID, releaseErr))
			}
		}
		return "", err
	}
	if batchRef == "" {
		return "", fmt.Errorf("%w for sku %s", ErrOutOfStock, cmd.SKU)
	}
	return batchRef, nil
}

// parseETA accepts a calendar date or an RFC3339 timestamp; empty means no ETA.
func parseETA(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrInvalidETA, s)
}
