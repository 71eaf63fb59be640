package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

const AllocatedChannel = "line_allocated"

var ErrInvalidSku = errors.New("invalid sku")

func AddBatch(ctx context.Context, cmd domain.CreateBatch, uow port.UnitOfWork) (string, error) {
	if cmd.Qty < 0 {
		return "", fmt.Errorf("batch %s quantity %d: %w", cmd.Ref, cmd.Qty, domain.ErrInvalidQuantity)
	}
	if err := uow.Begin(ctx); err != nil {
		return "", err
	}
	defer uow.Rollback(ctx)

	product, err := uow.Products().Get(ctx, cmd.SKU)
	if err != nil {
		return "", err
	}
	if product == nil {
		if product, err = domain.NewProduct(cmd.SKU); err != nil {
			return "", err
		}
		if err := uow.Products().Add(ctx, product); err != nil {
			return "", err
		}
	}

	if err := product.AddStock(domain.NewBatch(cmd.Ref, cmd.SKU, cmd.Qty, cmd.ETA)); err != nil {
		return "", err
	}
	if err := uow.Commit(ctx); err != nil {
		return "", err
	}
	return cmd.Ref, nil
}

// Allocate returns the chosen batch reference, or an empty string when the
// product is out of stock.
func Allocate(ctx context.Context, cmd domain.Allocate, uow port.UnitOfWork) (string, error) {
	line, err := domain.NewOrderLine(cmd.OrderID, cmd.SKU, cmd.Qty)
	if err != nil {
		return "", err
	}
	return allocateLine(ctx, line, uow)
}

func ChangeBatchQuantity(ctx context.Context, cmd domain.ChangeBatchQuantity, uow port.UnitOfWork) (string, error) {
	if err := uow.Begin(ctx); err != nil {
		return "", err
	}
	defer uow.Rollback(ctx)

	product, err := uow.Products().GetByBatchReference(ctx, cmd.Ref)
	if err != nil {
		return "", err
	}
	if product == nil {
		return "", fmt.Errorf("batch %s: %w", cmd.Ref, domain.ErrUnknownBatch)
	}
	if err := product.ChangeBatchQuantity(cmd.Ref, cmd.Qty); err != nil {
		return "", err
	}
	if err := uow.Commit(ctx); err != nil {
		return "", err
	}
	return cmd.Ref, nil
}

// Reallocate tries to place a line evicted by a quantity change on another batch.
func Reallocate(ctx context.Context, evt domain.Deallocated, uow port.UnitOfWork) error {
	line, err := domain.NewOrderLine(evt.OrderID, evt.SKU, evt.Qty)
	if err != nil {
		return err
	}
	_, err = allocateLine(ctx, line, uow)
	return err
}

func allocateLine(ctx context.Context, line domain.OrderLine, uow port.UnitOfWork) (string, error) {
	if err := uow.Begin(ctx); err != nil {
		return "", err
	}
	defer uow.Rollback(ctx)

	product, err := uow.Products().Get(ctx, line.SKU)
	if err != nil {
		return "", err
	}
	if product == nil {
		return "", fmt.Errorf("%w %s", ErrInvalidSku, line.SKU)
	}

	ref := product.Allocate(line)
	if err := uow.Commit(ctx); err != nil {
		return "", err
	}
	return ref, nil
}

func PublishAllocatedEvent(publisher port.EventPublisher) func(context.Context, domain.Allocated, port.UnitOfWork) error {
	return func(ctx context.Context, evt domain.Allocated, _ port.UnitOfWork) error {
		return publisher.Publish(ctx, AllocatedChannel, evt)
	}
}

func AddAllocationToReadModel(view port.AllocationsView) func(context.Context, domain.Allocated, port.UnitOfWork) error {
	return func(ctx context.Context, evt domain.Allocated, _ port.UnitOfWork) error {
		return view.Add(ctx, domain.Allocation{OrderID: evt.OrderID, SKU: evt.SKU, BatchRef: evt.BatchRef})
	}
}

func RemoveAllocationFromReadModel(view port.AllocationsView) func(context.Context, domain.Deallocated, port.UnitOfWork) error {
	return func(ctx context.Context, evt domain.Deallocated, _ port.UnitOfWork) error {
		return view.Remove(ctx, evt.OrderID, evt.SKU)
	}
}

func SendOutOfStockNotification(notifier port.Notifier, destination string) func(context.Context, domain.OutOfStock, port.UnitOfWork) error {
	return func(ctx context.Context, evt domain.OutOfStock, _ port.UnitOfWork) error {
		return notifier.Send(ctx, destination, fmt.Sprintf("Out of stock for %s", evt.SKU))
	}
}
