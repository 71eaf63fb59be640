package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// SQLStore persists products in a relational database. The product version
// column is compared on every write so concurrent transactions cannot both
// commit a change to the same product.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) NewUnitOfWork() port.UnitOfWork {
	return &sqlUnitOfWork{store: s}
}

type sqlUnitOfWork struct {
	store  *SQLStore
	tx     *sql.Tx
	repo   *sqlRepository
	events []domain.Event
}

func (u *sqlUnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	u.tx = tx
	u.repo = &sqlRepository{q: sqlQuerier{tx: tx, driver: u.store.driver}, identity: make(map[string]int)}
	return nil
}

func (u *sqlUnitOfWork) Products() port.ProductRepository {
	return u.repo
}

func (u *sqlUnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return errNoTransaction
	}
	for _, t := range u.repo.tracked {
		if err := u.repo.q.persist(ctx, t); err != nil {
			return err
		}
	}
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.events = append(u.events, drainAll(u.repo.Seen())...)
	u.tx = nil
	u.repo = nil
	return nil
}

func (u *sqlUnitOfWork) Rollback(_ context.Context) error {
	if u.tx == nil {
		return nil
	}
	drainAll(u.repo.Seen())
	err := u.tx.Rollback()
	u.tx = nil
	u.repo = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (u *sqlUnitOfWork) CollectNewEvents() []domain.Event {
	events := u.events
	u.events = nil
	return events
}

type sqlRepository struct {
	q        sqlQuerier
	tracked  []trackedProduct
	identity map[string]int
}

func (r *sqlRepository) track(p *domain.Product, isNew bool) *domain.Product {
	if i, ok := r.identity[p.SKU()]; ok {
		return r.tracked[i].product
	}
	r.identity[p.SKU()] = len(r.tracked)
	r.tracked = append(r.tracked, trackedProduct{product: p, loadedVersion: p.Version(), isNew: isNew})
	return p
}

func (r *sqlRepository) Get(ctx context.Context, sku string) (*domain.Product, error) {
	if i, ok := r.identity[sku]; ok {
		return r.tracked[i].product, nil
	}
	p, err := r.q.loadProduct(ctx, sku)
	if err != nil || p == nil {
		return nil, err
	}
	return r.track(p, false), nil
}

func (r *sqlRepository) GetByBatchReference(ctx context.Context, ref string) (*domain.Product, error) {
	for _, t := range r.tracked {
		if _, ok := t.product.Batch(ref); ok {
			return t.product, nil
		}
	}
	var sku string
	err := r.q.queryRow(ctx, `SELECT sku FROM batches WHERE reference = ?`, ref).Scan(&sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	return r.Get(ctx, sku)
}

func (r *sqlRepository) Add(_ context.Context, p *domain.Product) error {
	if _, ok := r.identity[p.SKU()]; ok {
		return port.ErrConcurrencyConflict
	}
	r.track(p, true)
	return nil
}

func (r *sqlRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.q.query(ctx, `SELECT sku FROM products ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			rows.Close()
			return nil, err
		}
		skus = append(skus, sku)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	products := make([]*domain.Product, 0, len(skus))
	for _, sku := range skus {
		p, err := r.Get(ctx, sku)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products = append(products, p)
		}
	}
	return products, nil
}

func (r *sqlRepository) Seen() []*domain.Product {
	out := make([]*domain.Product, 0, len(r.tracked))
	for _, t := range r.tracked {
		out = append(out, t.product)
	}
	return out
}

type sqlQuerier struct {
	tx     *sql.Tx
	driver string
}

func (q sqlQuerier) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.tx.ExecContext(ctx, rebind(q.driver, query), args...)
}

func (q sqlQuerier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.tx.QueryContext(ctx, rebind(q.driver, query), args...)
}

func (q sqlQuerier) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.tx.QueryRowContext(ctx, rebind(q.driver, query), args...)
}

func (q sqlQuerier) loadProduct(ctx context.Context, sku string) (*domain.Product, error) {
	var version int
	err := q.queryRow(ctx, `SELECT version FROM products WHERE sku = ?`, sku).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	lines, err := q.loadAllocations(ctx, sku)
	if err != nil {
		return nil, err
	}

	rows, err := q.query(ctx, `
		SELECT reference, purchased_quantity, eta
		FROM batches WHERE sku = ? ORDER BY seq`, sku)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		var (
			ref string
			qty int
			eta sql.NullString
		)
		if err := rows.Scan(&ref, &qty, &eta); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		var etaTime *time.Time
		if eta.Valid {
			t, err := time.Parse(time.DateOnly, eta.String)
			if err != nil {
				return nil, fmt.Errorf("batch %s eta: %w", ref, err)
			}
			etaTime = &t
		}
		batches = append(batches, domain.RestoreBatch(ref, sku, qty, etaTime, lines[ref]))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return domain.RestoreProduct(sku, version, batches)
}

func (q sqlQuerier) loadAllocations(ctx context.Context, sku string) (map[string][]domain.OrderLine, error) {
	rows, err := q.query(ctx, `
		SELECT batchref, orderid, qty
		FROM allocations WHERE sku = ? ORDER BY batchref, seq`, sku)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.OrderLine)
	for rows.Next() {
		var ref string
		line := domain.OrderLine{SKU: sku}
		if err := rows.Scan(&ref, &line.OrderID, &line.Qty); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		lines[ref] = append(lines[ref], line)
	}
	return lines, rows.Err()
}

// persist writes a tracked product back. Unchanged products are skipped;
// changed ones must still be at the version they were read at.
func (q sqlQuerier) persist(ctx context.Context, t trackedProduct) error {
	p := t.product
	switch {
	case t.isNew:
		if _, err := q.exec(ctx, `INSERT INTO products (sku, version) VALUES (?, ?)`, p.SKU(), p.Version()); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("product %s created concurrently: %w", p.SKU(), port.ErrConcurrencyConflict)
			}
			return fmt.Errorf("insert product %s: %w", p.SKU(), err)
		}
	case p.Version() == t.loadedVersion:
		return nil
	default:
		result, err := q.exec(ctx, `
			UPDATE products SET version = ?
			WHERE sku = ? AND version = ?`,
			p.Version(), p.SKU(), t.loadedVersion,
		)
		if err != nil {
			return fmt.Errorf("update product %s: %w", p.SKU(), err)
		}
		if err := checkVersionUpdate(result, p.SKU(), t.loadedVersion); err != nil {
			return err
		}
	}

	if _, err := q.exec(ctx, `DELETE FROM allocations WHERE sku = ?`, p.SKU()); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}
	if _, err := q.exec(ctx, `DELETE FROM batches WHERE sku = ?`, p.SKU()); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}

	for i, b := range p.Batches() {
		var eta sql.NullString
		if b.ETA != nil {
			eta = sql.NullString{String: b.ETA.Format(time.DateOnly), Valid: true}
		}
		if _, err := q.exec(ctx, `
			INSERT INTO batches (reference, sku, purchased_quantity, eta, seq)
			VALUES (?, ?, ?, ?, ?)`,
			b.Reference, b.SKU, b.PurchasedQuantity(), eta, i,
		); err != nil {
			return fmt.Errorf("insert batch %s: %w", b.Reference, err)
		}
		for j, line := range b.Allocations() {
			if _, err := q.exec(ctx, `
				INSERT INTO allocations (batchref, seq, sku, orderid, qty)
				VALUES (?, ?, ?, ?, ?)`,
				b.Reference, j, line.SKU, line.OrderID, line.Qty,
			); err != nil {
				return fmt.Errorf("insert allocation %s/%s: %w", b.Reference, line.OrderID, err)
			}
		}
	}
	return nil
}
