package port

import (
	"context"
	"errors"

	"github.com/rl1809/allocation/internal/core/domain"
)

var ErrConcurrencyConflict = errors.New("concurrency conflict")

type ProductRepository interface {
	// Get returns nil when no product exists for the sku
	Get(ctx context.Context, sku string) (*domain.Product, error)

	// GetByBatchReference returns nil when no batch has the reference
	GetByBatchReference(ctx context.Context, ref string) (*domain.Product, error)

	// Add registers a new product to be inserted on commit
	Add(ctx context.Context, product *domain.Product) error

	List(ctx context.Context) ([]*domain.Product, error)

	// Seen returns every product added or fetched in the current transaction
	Seen() []*domain.Product
}

// UnitOfWork wraps one storage transaction. After Begin, a deferred Rollback
// discards anything not committed; Rollback after Commit is a no-op.
type UnitOfWork interface {
	Begin(ctx context.Context) error

	Products() ProductRepository

	// Commit fails with ErrConcurrencyConflict when another transaction has
	// already advanced the version of a touched product
	Commit(ctx context.Context) error

	Rollback(ctx context.Context) error

	// CollectNewEvents drains events raised by products in committed
	// transactions, in the order they were raised
	CollectNewEvents() []domain.Event
}
