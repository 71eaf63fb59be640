package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

func randomSKU() string      { return "sku-" + uuid.NewString()[:8] }
func randomBatchRef() string { return "batch-" + uuid.NewString()[:8] }
func randomOrderID() string  { return "order-" + uuid.NewString()[:8] }

// seedProduct commits a new product holding one batch per quantity; the
// first batch is warehouse stock, later ones arrive on consecutive days.
func seedProduct(t *testing.T, newUoW func() port.UnitOfWork, sku string, qtys ...int) []string {
	t.Helper()
	ctx := context.Background()
	uow := newUoW()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback(ctx)

	product, err := domain.NewProduct(sku)
	require.NoError(t, err)
	var refs []string
	for i, qty := range qtys {
		var eta *time.Time
		if i > 0 {
			d := time.Date(2025, time.January, i, 0, 0, 0, 0, time.UTC)
			eta = &d
		}
		ref := randomBatchRef()
		refs = append(refs, ref)
		require.NoError(t, product.AddStock(domain.NewBatch(ref, sku, qty, eta)))
	}
	require.NoError(t, uow.Products().Add(ctx, product))
	require.NoError(t, uow.Commit(ctx))
	return refs
}

func loadProduct(t *testing.T, newUoW func() port.UnitOfWork, sku string) *domain.Product {
	t.Helper()
	ctx := context.Background()
	uow := newUoW()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback(ctx)
	product, err := uow.Products().Get(ctx, sku)
	require.NoError(t, err)
	return product
}

func runUnitOfWorkSuite(t *testing.T, newUoW func() port.UnitOfWork) {
	t.Run("round trips a product", func(t *testing.T) {
		sku := randomSKU()
		refs := seedProduct(t, newUoW, sku, 100, 50)

		product := loadProduct(t, newUoW, sku)
		require.NotNil(t, product)
		assert.Equal(t, 2, product.Version())
		batches := product.Batches()
		require.Len(t, batches, 2)
		assert.Equal(t, refs[0], batches[0].Reference)
		assert.Nil(t, batches[0].ETA)
		require.NotNil(t, batches[1].ETA)
		assert.Equal(t, "2025-01-01", batches[1].ETA.Format(time.DateOnly))
		assert.Equal(t, 150, product.AvailableQuantity())
	})

	t.Run("missing product is nil", func(t *testing.T) {
		assert.Nil(t, loadProduct(t, newUoW, randomSKU()))
	})

	t.Run("persists allocations", func(t *testing.T) {
		ctx := context.Background()
		sku := randomSKU()
		refs := seedProduct(t, newUoW, sku, 100)
		line := domain.OrderLine{OrderID: randomOrderID(), SKU: sku, Qty: 10}

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		product, err := uow.Products().GetByBatchReference(ctx, refs[0])
		require.NoError(t, err)
		require.NotNil(t, product)
		assert.Equal(t, refs[0], product.Allocate(line))
		require.NoError(t, uow.Commit(ctx))
		require.NoError(t, uow.Rollback(ctx))

		reloaded := loadProduct(t, newUoW, sku)
		assert.True(t, reloaded.IsAllocatedForLine(line))
		assert.Equal(t, 90, reloaded.AvailableQuantity())
		assert.Equal(t, 2, reloaded.Version())
	})

	t.Run("rolls back uncommitted work by default", func(t *testing.T) {
		ctx := context.Background()
		sku := randomSKU()

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		product, err := domain.NewProduct(sku, domain.NewBatch(randomBatchRef(), sku, 10, nil))
		require.NoError(t, err)
		require.NoError(t, uow.Products().Add(ctx, product))
		product.Allocate(domain.OrderLine{OrderID: "o1", SKU: sku, Qty: 1})
		require.NoError(t, uow.Rollback(ctx))

		assert.Nil(t, loadProduct(t, newUoW, sku))
		assert.Empty(t, uow.CollectNewEvents())
	})

	t.Run("collects events only after commit", func(t *testing.T) {
		ctx := context.Background()
		sku := randomSKU()
		refs := seedProduct(t, newUoW, sku, 10)

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback(ctx)
		product, err := uow.Products().Get(ctx, sku)
		require.NoError(t, err)
		product.Allocate(domain.OrderLine{OrderID: "o1", SKU: sku, Qty: 4})
		product.Allocate(domain.OrderLine{OrderID: "o2", SKU: sku, Qty: 40})
		assert.Empty(t, uow.CollectNewEvents())

		require.NoError(t, uow.Commit(ctx))

		assert.Equal(t, []domain.Event{
			domain.Allocated{OrderID: "o1", SKU: sku, Qty: 4, BatchRef: refs[0]},
			domain.OutOfStock{SKU: sku},
		}, uow.CollectNewEvents())
		assert.Empty(t, uow.CollectNewEvents())
	})

	t.Run("out of stock commits without a version change", func(t *testing.T) {
		ctx := context.Background()
		sku := randomSKU()
		seedProduct(t, newUoW, sku, 1)

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		product, err := uow.Products().Get(ctx, sku)
		require.NoError(t, err)
		assert.Empty(t, product.Allocate(domain.OrderLine{OrderID: "o1", SKU: sku, Qty: 5}))
		require.NoError(t, uow.Commit(ctx))

		assert.Equal(t, []domain.Event{domain.OutOfStock{SKU: sku}}, uow.CollectNewEvents())
		assert.Equal(t, 1, loadProduct(t, newUoW, sku).Version())
	})

	t.Run("identity map returns the same product", func(t *testing.T) {
		ctx := context.Background()
		sku := randomSKU()
		refs := seedProduct(t, newUoW, sku, 10)

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback(ctx)
		a, err := uow.Products().Get(ctx, sku)
		require.NoError(t, err)
		b, err := uow.Products().GetByBatchReference(ctx, refs[0])
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Len(t, uow.Products().Seen(), 1)
	})

	t.Run("lists products", func(t *testing.T) {
		ctx := context.Background()
		sku1, sku2 := randomSKU(), randomSKU()
		seedProduct(t, newUoW, sku1, 1)
		seedProduct(t, newUoW, sku2, 1)

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback(ctx)
		products, err := uow.Products().List(ctx)
		require.NoError(t, err)

		var skus []string
		for _, p := range products {
			skus = append(skus, p.SKU())
		}
		assert.Contains(t, skus, sku1)
		assert.Contains(t, skus, sku2)
		assert.Len(t, uow.Products().Seen(), len(products))
	})

	t.Run("change batch quantity persists evictions", func(t *testing.T) {
		ctx := context.Background()
		sku := randomSKU()
		refs := seedProduct(t, newUoW, sku, 10)

		uow := newUoW()
		require.NoError(t, uow.Begin(ctx))
		product, err := uow.Products().Get(ctx, sku)
		require.NoError(t, err)
		product.Allocate(domain.OrderLine{OrderID: "o1", SKU: sku, Qty: 8})
		require.NoError(t, product.ChangeBatchQuantity(refs[0], 5))
		require.NoError(t, uow.Commit(ctx))

		reloaded := loadProduct(t, newUoW, sku)
		assert.False(t, reloaded.IsAllocatedForOrder("o1"))
		assert.Equal(t, 5, reloaded.AvailableQuantity())
	})
}
