package port

import (
	"context"

	"github.com/rl1809/allocation/internal/core/domain"
)

// AllocationsView maintains the denormalized (orderid, sku, batchref) read model.
type AllocationsView interface {
	Add(ctx context.Context, allocation domain.Allocation) error
	Remove(ctx context.Context, orderID, sku string) error
	ForOrder(ctx context.Context, orderID string) ([]domain.Allocation, error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key whose request did not complete, so the
	// client may retry with it
	ReleaseIdempotency(ctx context.Context, key string) error
}
