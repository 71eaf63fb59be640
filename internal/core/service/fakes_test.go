package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

type fakeRepository struct {
	products map[string]*domain.Product
	seen     []*domain.Product
}

func (r *fakeRepository) track(p *domain.Product) {
	for _, s := range r.seen {
		if s == p {
			return
		}
	}
	r.seen = append(r.seen, p)
}

func (r *fakeRepository) Get(_ context.Context, sku string) (*domain.Product, error) {
	p, ok := r.products[sku]
	if !ok {
		return nil, nil
	}
	r.track(p)
	return p, nil
}

func (r *fakeRepository) GetByBatchReference(_ context.Context, ref string) (*domain.Product, error) {
	for _, p := range r.products {
		if _, ok := p.Batch(ref); ok {
			r.track(p)
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) Add(_ context.Context, p *domain.Product) error {
	r.products[p.SKU()] = p
	r.track(p)
	return nil
}

func (r *fakeRepository) List(_ context.Context) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, p := range r.products {
		r.track(p)
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepository) Seen() []*domain.Product { return r.seen }

// fakeUnitOfWork keeps products in memory without copying them, so a rollback
// does not undo mutations.
type fakeUnitOfWork struct {
	repo      *fakeRepository
	commits   int
	commitErr error
	events    []domain.Event
}

func newFakeUnitOfWork() *fakeUnitOfWork {
	return &fakeUnitOfWork{repo: &fakeRepository{products: make(map[string]*domain.Product)}}
}

func (u *fakeUnitOfWork) Begin(context.Context) error {
	u.repo.seen = nil
	return nil
}

func (u *fakeUnitOfWork) Products() port.ProductRepository { return u.repo }

func (u *fakeUnitOfWork) Commit(context.Context) error {
	if u.commitErr != nil {
		return u.commitErr
	}
	u.commits++
	for _, p := range u.repo.seen {
		u.events = append(u.events, p.DrainEvents()...)
	}
	u.repo.seen = nil
	return nil
}

func (u *fakeUnitOfWork) Rollback(context.Context) error {
	for _, p := range u.repo.seen {
		p.DrainEvents()
	}
	u.repo.seen = nil
	return nil
}

func (u *fakeUnitOfWork) CollectNewEvents() []domain.Event {
	events := u.events
	u.events = nil
	return events
}

type publishedEvent struct {
	channel string
	event   domain.Event
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedEvent
	failures  int
}

func (p *fakePublisher) Publish(_ context.Context, channel string, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, publishedEvent{channel: channel, event: event})
	return nil
}

type sentNotification struct {
	destination string
	message     string
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, destination, message string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{destination: destination, message: message})
	return nil
}

type fakeView struct {
	rows []domain.Allocation
}

func (v *fakeView) Add(_ context.Context, a domain.Allocation) error {
	v.rows = append(v.rows, a)
	return nil
}

func (v *fakeView) Remove(_ context.Context, orderID, sku string) error {
	kept := v.rows[:0]
	for _, r := range v.rows {
		if r.OrderID != orderID || r.SKU != sku {
			kept = append(kept, r)
		}
	}
	v.rows = kept
	return nil
}

func (v *fakeView) ForOrder(_ context.Context, orderID string) ([]domain.Allocation, error) {
	var out []domain.Allocation
	for _, r := range v.rows {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}
