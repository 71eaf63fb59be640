package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/allocation/internal/adapter/messaging"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

const (
	initialStock    = 20
	totalRequests   = 50
	conflictRetries = 100
)

type store interface {
	NewUnitOfWork() port.UnitOfWork
	port.AllocationsView
}

// openStore uses the SQL store named by DB_DRIVER/DB_DSN, or memory by default.
func openStore(ctx context.Context) (store, error) {
	driver := os.Getenv("DB_DRIVER")
	if driver == "" || driver == "memory" {
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenSQLStore(ctx, driver, os.Getenv("DB_DSN"))
}

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	s, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}

	registry, err := service.Bootstrap(service.Dependencies{
		Publisher:     messaging.NewLogPublisher(logger),
		Notifier:      notification.NewLogNotifier(logger),
		View:          s,
		StockContacts: "stock@made.com",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}
	bus := service.NewMessageBus(registry, s.NewUnitOfWork, logger)

	sku := "stress-" + uuid.NewString()[:8]
	if _, err := bus.Handle(ctx, domain.CreateBatch{Ref: "batch-" + sku, SKU: sku, Qty: initialStock}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create batch: %v\n", err)
		os.Exit(1)
	}

	var (
		successCount    atomic.Int32
		outOfStockCount atomic.Int32
		conflictCount   atomic.Int32
	)

	var g errgroup.Group
	start := time.Now()

	for range totalRequests {
		orderID := "order-" + uuid.NewString()
		g.Go(func() error {
			cmd := domain.Allocate{OrderID: orderID, SKU: sku, Qty: 1}
			var batchRef string
			op := func() error {
				ref, err := bus.Handle(ctx, cmd)
				if errors.Is(err, port.ErrConcurrencyConflict) {
					conflictCount.Add(1)
					return err
				}
				if err != nil {
					return backoff.Permanent(err)
				}
				batchRef = ref
				return nil
			}
			policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), conflictRetries)
			if err := backoff.Retry(op, policy); err != nil {
				return fmt.Errorf("allocate %s: %w", orderID, err)
			}
			if batchRef == "" {
				outOfStockCount.Add(1)
			} else {
				successCount.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "stress run failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	success := successCount.Load()
	outOfStock := outOfStockCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Allocated:        %d\n", success)
	fmt.Printf("Out of stock:     %d\n", outOfStock)
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && outOfStock == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d allocations succeeded, %d were out of stock\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: expected %d/%d, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, outOfStock)
	}

	uow := s.NewUnitOfWork()
	if err := uow.Begin(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to verify: %v\n", err)
		os.Exit(1)
	}
	defer uow.Rollback(ctx)
	product, err := uow.Products().Get(ctx, sku)
	if err != nil || product == nil {
		fmt.Fprintf(os.Stderr, "failed to load product: %v\n", err)
		os.Exit(1)
	}

	if available := product.AvailableQuantity(); available == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", available)
	}
}
