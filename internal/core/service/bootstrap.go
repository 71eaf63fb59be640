package service

import (
	"errors"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// Dependencies are the outbound ports the event handlers need.
type Dependencies struct {
	Publisher     port.EventPublisher
	Notifier      port.Notifier
	View          port.AllocationsView
	StockContacts string
}

// Bootstrap builds the handler registry for the allocation service.
func Bootstrap(deps Dependencies) (*Registry, error) {
	if deps.Publisher == nil || deps.Notifier == nil || deps.View == nil {
		return nil, errors.New("bootstrap: publisher, notifier and view are required")
	}

	r := NewRegistry()

	if err := RegisterCommand(r, AddBatch); err != nil {
		return nil, err
	}
	if err := RegisterCommand(r, Allocate); err != nil {
		return nil, err
	}
	if err := RegisterCommand(r, ChangeBatchQuantity); err != nil {
		return nil, err
	}

	RegisterEvent[domain.Allocated](r, "publish_allocated_event", PublishAllocatedEvent(deps.Publisher))
	RegisterEvent[domain.Allocated](r, "add_allocation_to_read_model", AddAllocationToReadModel(deps.View))
	RegisterEvent[domain.Deallocated](r, "remove_allocation_from_read_model", RemoveAllocationFromReadModel(deps.View))
	RegisterEvent[domain.Deallocated](r, "reallocate", Reallocate)
	RegisterEvent[domain.OutOfStock](r, "send_out_of_stock_notification", SendOutOfStockNotification(deps.Notifier, deps.StockContacts))

	return r, nil
}
