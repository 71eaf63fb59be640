package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/allocation/internal/adapter/handler"
	"github.com/rl1809/allocation/internal/adapter/messaging"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/config"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/observability"
	"github.com/rl1809/allocation/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

// backend is the storage side of the service: units of work, the read
// model and, when available, idempotency keys.
type backend struct {
	newUoW      service.UnitOfWorkFactory
	view        port.AllocationsView
	idempotency port.IdempotencyStore
	closer      func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.DBDriver == config.DriverMemory {
		store := storage.NewMemoryStore()
		return &backend{
			newUoW:      store.NewUnitOfWork,
			view:        store,
			idempotency: store,
			closer:      func() error { return nil },
		}, nil
	}

	store, err := storage.OpenSQLStore(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	return &backend{
		newUoW: store.NewUnitOfWork,
		view:   store,
		closer: store.Close,
	}, nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, config.ServiceName, config.ServiceVersion)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.closer()
	logger.Info("storage ready", zap.String("driver", cfg.DBDriver))

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		db.idempotency = storage.NewRedisAdapter(rdb)
	}

	var publisher port.EventPublisher
	switch cfg.EventBackend {
	case config.EventBackendRedis:
		publisher = storage.NewRedisAdapter(rdb)
	case config.EventBackendKafka:
		kp := messaging.NewKafkaPublisher(cfg.KafkaBroker)
		defer kp.Close()
		publisher = kp
	default:
		publisher = messaging.NewLogPublisher(logger)
	}
	logger.Info("event publisher ready", zap.String("backend", cfg.EventBackend))

	var notifier port.Notifier = notification.NewLogNotifier(logger)
	if cfg.SMTPAddr != "" {
		notifier = notification.NewEmailNotifier(cfg.SMTPAddr, cfg.NotifyFrom)
	}

	registry, err := service.Bootstrap(service.Dependencies{
		Publisher:     publisher,
		Notifier:      notifier,
		View:          db.view,
		StockContacts: cfg.NotifyTo,
	})
	if err != nil {
		return err
	}
	bus := service.NewMessageBus(registry, db.newUoW, logger,
		service.WithRetryInterval(cfg.EventRetryInterval))

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(logUnary(logger)))
	handler.RegisterAllocationServiceServer(grpcServer, handler.NewGRPCHandler(bus, db.view, db.idempotency, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(bus, db.view, db.idempotency, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if rdb != nil {
		consumer := handler.NewRedisConsumer(rdb, bus, logger)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return err
	})

	return g.Wait()
}

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}
