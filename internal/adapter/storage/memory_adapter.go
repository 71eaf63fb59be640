package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

var errNoTransaction = errors.New("unit of work has no active transaction")

// MemoryStore keeps committed products as private snapshots. Each unit of
// work loads its own copies, so concurrent transactions behave like
// separate database sessions.
type MemoryStore struct {
	mu          sync.Mutex
	products    map[string]*domain.Product
	allocations []domain.Allocation
	idempotency map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]*domain.Product),
		idempotency: make(map[string]struct{}),
	}
}

func (s *MemoryStore) NewUnitOfWork() port.UnitOfWork {
	return &memoryUnitOfWork{store: s}
}

func (s *MemoryStore) load(sku string) (*domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sku]
	if !ok {
		return nil, false
	}
	return cloneProduct(p), true
}

func (s *MemoryStore) skuForBatch(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sku, p := range s.products {
		if _, ok := p.Batch(ref); ok {
			return sku, true
		}
	}
	return "", false
}

func (s *MemoryStore) skus() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.products))
	for sku := range s.products {
		out = append(out, sku)
	}
	sort.Strings(out)
	return out
}

// save validates every version first and only then writes, so a conflict
// leaves the store untouched.
func (s *MemoryStore) save(tracked []trackedProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tracked {
		current, exists := s.products[t.product.SKU()]
		switch {
		case t.isNew && exists:
			return port.ErrConcurrencyConflict
		case !t.isNew && t.product.Version() != t.loadedVersion && current.Version() != t.loadedVersion:
			return port.ErrConcurrencyConflict
		}
	}
	for _, t := range tracked {
		if t.isNew || t.product.Version() != t.loadedVersion {
			s.products[t.product.SKU()] = cloneProduct(t.product)
		}
	}
	return nil
}

// Add implements port.AllocationsView. Adding a row that is already present
// is a no-op.
func (s *MemoryStore) Add(_ context.Context, a domain.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.allocations {
		if existing == a {
			return nil
		}
	}
	s.allocations = append(s.allocations, a)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, orderID, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.allocations[:0]
	for _, a := range s.allocations {
		if a.OrderID != orderID || a.SKU != sku {
			kept = append(kept, a)
		}
	}
	s.allocations = kept
	return nil
}

func (s *MemoryStore) ForOrder(_ context.Context, orderID string) ([]domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Allocation
	for _, a := range s.allocations {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) SetIdempotency(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idempotency[key]; ok {
		return false, nil
	}
	s.idempotency[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) ReleaseIdempotency(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, key)
	return nil
}

type trackedProduct struct {
	product       *domain.Product
	loadedVersion int
	isNew         bool
}

type memoryUnitOfWork struct {
	store  *MemoryStore
	repo   *memoryRepository
	events []domain.Event
}

func (u *memoryUnitOfWork) Begin(_ context.Context) error {
	u.repo = &memoryRepository{store: u.store, identity: make(map[string]int)}
	return nil
}

func (u *memoryUnitOfWork) Products() port.ProductRepository {
	return u.repo
}

func (u *memoryUnitOfWork) Commit(_ context.Context) error {
	if u.repo == nil {
		return errNoTransaction
	}
	if err := u.store.save(u.repo.tracked); err != nil {
		return err
	}
	u.events = append(u.events, drainAll(u.repo.Seen())...)
	u.repo = nil
	return nil
}

func (u *memoryUnitOfWork) Rollback(_ context.Context) error {
	if u.repo == nil {
		return nil
	}
	drainAll(u.repo.Seen())
	u.repo = nil
	return nil
}

func (u *memoryUnitOfWork) CollectNewEvents() []domain.Event {
	events := u.events
	u.events = nil
	return events
}

type memoryRepository struct {
	store    *MemoryStore
	tracked  []trackedProduct
	identity map[string]int
}

func (r *memoryRepository) track(p *domain.Product, isNew bool) *domain.Product {
	if i, ok := r.identity[p.SKU()]; ok {
		return r.tracked[i].product
	}
	r.identity[p.SKU()] = len(r.tracked)
	r.tracked = append(r.tracked, trackedProduct{product: p, loadedVersion: p.Version(), isNew: isNew})
	return p
}

func (r *memoryRepository) Get(_ context.Context, sku string) (*domain.Product, error) {
	if i, ok := r.identity[sku]; ok {
		return r.tracked[i].product, nil
	}
	p, ok := r.store.load(sku)
	if !ok {
		return nil, nil
	}
	return r.track(p, false), nil
}

func (r *memoryRepository) GetByBatchReference(ctx context.Context, ref string) (*domain.Product, error) {
	for _, t := range r.tracked {
		if _, ok := t.product.Batch(ref); ok {
			return t.product, nil
		}
	}
	sku, ok := r.store.skuForBatch(ref)
	if !ok {
		return nil, nil
	}
	return r.Get(ctx, sku)
}

func (r *memoryRepository) Add(_ context.Context, p *domain.Product) error {
	if _, ok := r.identity[p.SKU()]; ok {
		return port.ErrConcurrencyConflict
	}
	r.track(p, true)
	return nil
}

func (r *memoryRepository) List(ctx context.Context) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, sku := range r.store.skus() {
		p, err := r.Get(ctx, sku)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepository) Seen() []*domain.Product {
	out := make([]*domain.Product, 0, len(r.tracked))
	for _, t := range r.tracked {
		out = append(out, t.product)
	}
	return out
}

func drainAll(products []*domain.Product) []domain.Event {
	var events []domain.Event
	for _, p := range products {
		events = append(events, p.DrainEvents()...)
	}
	return events
}

func cloneProduct(p *domain.Product) *domain.Product {
	batches := make([]*domain.Batch, 0, len(p.Batches()))
	for _, b := range p.Batches() {
		batches = append(batches, domain.RestoreBatch(b.Reference, b.SKU, b.PurchasedQuantity(), b.ETA, b.Allocations()))
	}
	clone, _ := domain.RestoreProduct(p.SKU(), p.Version(), batches)
	return clone
}
