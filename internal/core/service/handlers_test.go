package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

func TestAddBatch_NewProduct(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()

	ref, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "CRUNCHY-ARMCHAIR", Qty: 100}, uow)
	require.NoError(t, err)

	assert.Equal(t, "b1", ref)
	product, _ := uow.repo.Get(ctx, "CRUNCHY-ARMCHAIR")
	require.NotNil(t, product)
	assert.Equal(t, 1, uow.commits)
}

func TestAddBatch_ExistingProduct(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()

	_, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "GARISH-RUG", Qty: 100}, uow)
	require.NoError(t, err)
	_, err = AddBatch(ctx, domain.CreateBatch{Ref: "b2", SKU: "GARISH-RUG", Qty: 99}, uow)
	require.NoError(t, err)

	product, _ := uow.repo.Get(ctx, "GARISH-RUG")
	var refs []string
	for _, b := range product.Batches() {
		refs = append(refs, b.Reference)
	}
	assert.Equal(t, []string{"b1", "b2"}, refs)
	assert.Equal(t, 2, product.Version())
}

func TestAddBatch_RejectsNegativeQuantity(t *testing.T) {
	uow := newFakeUnitOfWork()

	_, err := AddBatch(context.Background(), domain.CreateBatch{Ref: "b1", SKU: "S", Qty: -1}, uow)

	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
	assert.Zero(t, uow.commits)
}

func TestAllocate_ReturnsBatchReference(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()
	_, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "COMPLICATED-LAMP", Qty: 100}, uow)
	require.NoError(t, err)

	ref, err := Allocate(ctx, domain.Allocate{OrderID: "o1", SKU: "COMPLICATED-LAMP", Qty: 10}, uow)

	require.NoError(t, err)
	assert.Equal(t, "b1", ref)
	assert.Equal(t, 2, uow.commits)
}

func TestAllocate_ErrorsForInvalidSku(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()
	_, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "AREALSKU", Qty: 100}, uow)
	require.NoError(t, err)

	_, err = Allocate(ctx, domain.Allocate{OrderID: "o1", SKU: "NONEXISTENTSKU", Qty: 10}, uow)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSku))
	assert.EqualError(t, err, "invalid sku NONEXISTENTSKU")
}

func TestAllocate_RejectsNonPositiveQuantity(t *testing.T) {
	uow := newFakeUnitOfWork()

	_, err := Allocate(context.Background(), domain.Allocate{OrderID: "o1", SKU: "S", Qty: 0}, uow)

	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
}

func TestAllocate_OutOfStockCommitsEvent(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()
	_, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "Z", Qty: 5}, uow)
	require.NoError(t, err)
	uow.CollectNewEvents()

	ref, err := Allocate(ctx, domain.Allocate{OrderID: "o1", SKU: "Z", Qty: 10}, uow)

	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Equal(t, []domain.Event{domain.OutOfStock{SKU: "Z"}}, uow.CollectNewEvents())
}

func TestAllocate_SurfacesConcurrencyConflict(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()
	_, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "S", Qty: 5}, uow)
	require.NoError(t, err)
	uow.commitErr = port.ErrConcurrencyConflict

	_, err = Allocate(ctx, domain.Allocate{OrderID: "o1", SKU: "S", Qty: 1}, uow)

	assert.True(t, errors.Is(err, port.ErrConcurrencyConflict))
	assert.Empty(t, uow.CollectNewEvents())
}

func TestChangeBatchQuantity_UnknownBatch(t *testing.T) {
	uow := newFakeUnitOfWork()

	_, err := ChangeBatchQuantity(context.Background(), domain.ChangeBatchQuantity{Ref: "nope", Qty: 1}, uow)

	assert.True(t, errors.Is(err, domain.ErrUnknownBatch))
	assert.Zero(t, uow.commits)
}

func TestChangeBatchQuantity_DeallocatesWhenShrinking(t *testing.T) {
	uow := newFakeUnitOfWork()
	ctx := context.Background()
	_, err := AddBatch(ctx, domain.CreateBatch{Ref: "b1", SKU: "S", Qty: 10}, uow)
	require.NoError(t, err)
	_, err = Allocate(ctx, domain.Allocate{OrderID: "o1", SKU: "S", Qty: 8}, uow)
	require.NoError(t, err)
	uow.CollectNewEvents()

	_, err = ChangeBatchQuantity(ctx, domain.ChangeBatchQuantity{Ref: "b1", Qty: 5}, uow)
	require.NoError(t, err)

	assert.Equal(t, []domain.Event{domain.Deallocated{OrderID: "o1", SKU: "S", Qty: 8}}, uow.CollectNewEvents())
	product, _ := uow.repo.Get(ctx, "S")
	b, _ := product.Batch("b1")
	assert.Equal(t, 5, b.AvailableQuantity())
}

func TestSendOutOfStockNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	handler := SendOutOfStockNotification(notifier, "stock@made.com")

	require.NoError(t, handler(context.Background(), domain.OutOfStock{SKU: "POPULAR-CURTAINS"}, nil))

	assert.Equal(t, []sentNotification{{destination: "stock@made.com", message: "Out of stock for POPULAR-CURTAINS"}}, notifier.sent)
}

func TestBootstrap_RequiresDependencies(t *testing.T) {
	_, err := Bootstrap(Dependencies{})
	assert.Error(t, err)
}

func TestRegisterCommand_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterCommand(r, Allocate))

	err := RegisterCommand(r, Allocate)

	assert.True(t, errors.Is(err, ErrDuplicateHandler))
}
