package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/allocation/internal/adapter/messaging"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/core/service"
)

// newTestBus wires the real bus and handlers over an in-memory store.
func newTestBus(t *testing.T) (*service.MessageBus, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	registry, err := service.Bootstrap(service.Dependencies{
		Publisher:     messaging.NewLogPublisher(zap.NewNop()),
		Notifier:      notification.NewLogNotifier(zap.NewNop()),
		View:          store,
		StockContacts: "stock@made.com",
	})
	require.NoError(t, err)
	bus := service.NewMessageBus(registry, store.NewUnitOfWork, zaptest.NewLogger(t),
		service.WithRetryInterval(time.Millisecond))
	return bus, store
}
