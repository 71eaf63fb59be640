package domain

import (
	"fmt"
	"time"
)

// Batch is a quantity of one sku purchased for delivery. A nil ETA means the
// stock is already in the warehouse.
type Batch struct {
	Reference string
	SKU       string
	ETA       *time.Time

	purchasedQuantity int
	allocations       []OrderLine
}

func NewBatch(ref, sku string, qty int, eta *time.Time) *Batch {
	return &Batch{
		Reference:         ref,
		SKU:               sku,
		ETA:               eta,
		purchasedQuantity: qty,
	}
}

// RestoreBatch rebuilds a batch from storage. Allocations are taken as
// persisted and are not re-validated.
func RestoreBatch(ref, sku string, qty int, eta *time.Time, allocations []OrderLine) *Batch {
	b := NewBatch(ref, sku, qty, eta)
	b.allocations = append([]OrderLine(nil), allocations...)
	return b
}

func (b *Batch) PurchasedQuantity() int {
	return b.purchasedQuantity
}

func (b *Batch) AllocatedQuantity() int {
	total := 0
	for _, line := range b.allocations {
		total += line.Qty
	}
	return total
}

func (b *Batch) AvailableQuantity() int {
	return b.purchasedQuantity - b.AllocatedQuantity()
}

// Allocations returns a copy of the allocated lines in allocation order.
func (b *Batch) Allocations() []OrderLine {
	return append([]OrderLine(nil), b.allocations...)
}

func (b *Batch) CanAllocate(line OrderLine) bool {
	return b.SKU == line.SKU && b.AvailableQuantity() >= line.Qty
}

// Allocate is a no-op when the line cannot be allocated or is already held.
func (b *Batch) Allocate(line OrderLine) {
	if !b.CanAllocate(line) || b.IsAllocatedForLine(line) {
		return
	}
	b.allocations = append(b.allocations, line)
}

func (b *Batch) Deallocate(line OrderLine) {
	for i, l := range b.allocations {
		if l == line {
			b.allocations = append(b.allocations[:i], b.allocations[i+1:]...)
			return
		}
	}
}

// DeallocateOne removes and returns the most recently allocated line.
func (b *Batch) DeallocateOne() (OrderLine, error) {
	n := len(b.allocations)
	if n == 0 {
		return OrderLine{}, fmt.Errorf("batch %s: %w", b.Reference, ErrEmptyAllocationSet)
	}
	line := b.allocations[n-1]
	b.allocations = b.allocations[:n-1]
	return line, nil
}

func (b *Batch) IsAllocatedForLine(line OrderLine) bool {
	for _, l := range b.allocations {
		if l == line {
			return true
		}
	}
	return false
}

func (b *Batch) IsAllocatedForOrder(orderID string) bool {
	for _, l := range b.allocations {
		if l.OrderID == orderID {
			return true
		}
	}
	return false
}

// Less orders warehouse stock before shipments, and shipments by ETA.
func (b *Batch) Less(other *Batch) bool {
	if b.ETA == nil {
		return other.ETA != nil
	}
	if other.ETA == nil {
		return false
	}
	return b.ETA.Before(*other.ETA)
}
