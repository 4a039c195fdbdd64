package events

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/workers"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type recordingHandler struct {
	mu       sync.Mutex
	events   []models.OrderExecuted
	traceIDs []string
}

func (r *recordingHandler) Handle(ctx context.Context, event models.OrderExecuted) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	r.traceIDs = append(r.traceIDs, zapLogger.TraceIDFromContext(ctx))
}

func TestBusDeliversOnPool(t *testing.T) {
	zapLogger.SetNopLogger()

	pool := workers.NewPool("events", 2, 8)
	pool.Start(context.Background())

	handler := &recordingHandler{}
	bus := NewBus(pool)
	bus.Subscribe(handler)

	ctx := zapLogger.ContextWithTraceID(context.Background(), "trace-42")
	event := models.OrderExecuted{OrderID: uuid.New(), OwnerID: uuid.New(), Symbol: "BTC", Side: "BUY"}
	require.NoError(t, bus.PublishOrderExecuted(ctx, event))

	require.NoError(t, pool.Stop(context.Background()))

	require.Len(t, handler.events, 1)
	assert.Equal(t, event.OrderID, handler.events[0].OrderID)
	assert.Equal(t, "trace-42", handler.traceIDs[0])
}

func TestBusReportsClosedPool(t *testing.T) {
	zapLogger.SetNopLogger()

	pool := workers.NewPool("events", 1, 1)
	require.NoError(t, pool.Stop(context.Background()))

	bus := NewBus(pool)
	bus.Subscribe(&recordingHandler{})

	err := bus.PublishOrderExecuted(context.Background(), models.OrderExecuted{})
	assert.ErrorIs(t, err, workers.ErrPoolClosed)
}

func TestBusRequiresHandler(t *testing.T) {
	pool := workers.NewPool("events", 1, 1)

	err := NewBus(pool).PublishOrderExecuted(context.Background(), models.OrderExecuted{})
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.Equal(t, 0, pool.Pending())
}
