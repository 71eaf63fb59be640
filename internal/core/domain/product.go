package domain

import (
	"fmt"
	"slices"
)

// Product is the aggregate root for every batch of one sku. Version is the
// optimistic concurrency token checked by storage on commit.
type Product struct {
	sku     string
	batches []*Batch
	version int
	events  []Event
}

func NewProduct(sku string, batches ...*Batch) (*Product, error) {
	return RestoreProduct(sku, 0, batches)
}

// RestoreProduct rebuilds a product loaded from storage at the given version.
func RestoreProduct(sku string, version int, batches []*Batch) (*Product, error) {
	for _, b := range batches {
		if b.SKU != sku {
			return nil, fmt.Errorf("batch %s has sku %s, product %s: %w", b.Reference, b.SKU, sku, ErrSkuMismatch)
		}
	}
	return &Product{
		sku:     sku,
		batches: append([]*Batch(nil), batches...),
		version: version,
	}, nil
}

func (p *Product) SKU() string  { return p.sku }
func (p *Product) Version() int { return p.version }

// Batches returns the batches in insertion order.
func (p *Product) Batches() []*Batch {
	return append([]*Batch(nil), p.batches...)
}

func (p *Product) Batch(ref string) (*Batch, bool) {
	for _, b := range p.batches {
		if b.Reference == ref {
			return b, true
		}
	}
	return nil, false
}

func (p *Product) AvailableQuantity() int {
	total := 0
	for _, b := range p.batches {
		total += b.AvailableQuantity()
	}
	return total
}

// Allocate places the line on the first batch, in batch order, able to hold
// it and returns that batch's reference. When none can, it records
// OutOfStock and returns an empty reference.
func (p *Product) Allocate(line OrderLine) string {
	sorted := slices.Clone(p.batches)
	slices.SortStableFunc(sorted, compareBatches)

	for _, b := range sorted {
		if !b.CanAllocate(line) {
			continue
		}
		b.Allocate(line)
		p.version++
		p.events = append(p.events, Allocated{
			OrderID:  line.OrderID,
			SKU:      line.SKU,
			Qty:      line.Qty,
			BatchRef: b.Reference,
		})
		return b.Reference
	}

	p.events = append(p.events, OutOfStock{SKU: p.sku})
	return ""
}

func (p *Product) AddStock(batch *Batch) error {
	if batch.SKU != p.sku {
		return fmt.Errorf("batch %s has sku %s, product %s: %w", batch.Reference, batch.SKU, p.sku, ErrSkuMismatch)
	}
	p.batches = append(p.batches, batch)
	p.version++
	return nil
}

// ChangeBatchQuantity resets the purchased quantity of a batch and evicts
// allocations until the batch is no longer oversold, recording a Deallocated
// event per evicted line.
func (p *Product) ChangeBatchQuantity(ref string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("batch %s quantity %d: %w", ref, qty, ErrInvalidQuantity)
	}
	b, ok := p.Batch(ref)
	if !ok {
		return fmt.Errorf("batch %s: %w", ref, ErrUnknownBatch)
	}

	b.purchasedQuantity = qty
	for b.AvailableQuantity() < 0 {
		line, err := b.DeallocateOne()
		if err != nil {
			return err
		}
		p.events = append(p.events, Deallocated{
			OrderID: line.OrderID,
			SKU:     line.SKU,
			Qty:     line.Qty,
		})
	}
	p.version++
	return nil
}

func (p *Product) IsAllocatedForLine(line OrderLine) bool {
	for _, b := range p.batches {
		if b.IsAllocatedForLine(line) {
			return true
		}
	}
	return false
}

func (p *Product) IsAllocatedForOrder(orderID string) bool {
	for _, b := range p.batches {
		if b.IsAllocatedForOrder(orderID) {
			return true
		}
	}
	return false
}

// DrainEvents empties the outbox. Only a unit of work should call it, after
// its transaction has finished.
func (p *Product) DrainEvents() []Event {
	events := p.events
	p.events = nil
	return events
}

func compareBatches(a, b *Batch) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}
