package storage

import (
	"context"
	"fmt"

	"github.com/rl1809/allocation/internal/core/domain"
)

// Add implements port.AllocationsView on the allocations_view table. An
// existing identical row is replaced, so repeated events leave one row.
func (s *SQLStore) Add(ctx context.Context, a domain.Allocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin allocation view: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, rebind(s.driver, `
		DELETE FROM allocations_view
		WHERE orderid = ? AND sku = ? AND batchref = ?`),
		a.OrderID, a.SKU, a.BatchRef,
	); err != nil {
		return fmt.Errorf("clear allocation view: %w", err)
	}
	if _, err := tx.ExecContext(ctx, rebind(s.driver, `
		INSERT INTO allocations_view (orderid, sku, batchref)
		VALUES (?, ?, ?)`),
		a.OrderID, a.SKU, a.BatchRef,
	); err != nil {
		return fmt.Errorf("insert allocation view: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) Remove(ctx context.Context, orderID, sku string) error {
	_, err := s.db.ExecContext(ctx, rebind(s.driver, `
		DELETE FROM allocations_view
		WHERE orderid = ? AND sku = ?`),
		orderID, sku,
	)
	if err != nil {
		return fmt.Errorf("delete allocation view: %w", err)
	}
	return nil
}

func (s *SQLStore) ForOrder(ctx context.Context, orderID string) ([]domain.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, rebind(s.driver, `
		SELECT sku, batchref FROM allocations_view WHERE orderid = ?`),
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query allocation view: %w", err)
	}
	defer rows.Close()

	var out []domain.Allocation
	for rows.Next() {
		a := domain.Allocation{OrderID: orderID}
		if err := rows.Scan(&a.SKU, &a.BatchRef); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
