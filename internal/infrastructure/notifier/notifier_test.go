package notifier

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/shared/config"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

func TestMain(m *testing.M) {
	zapLogger.SetNopLogger()
	os.Exit(m.Run())
}

type recordingSink struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingSink) Send(_ context.Context, notification Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, notification)
	return nil
}

var breakerConfig = config.CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    time.Minute,
	Timeout:     time.Minute,
	MaxFailures: 2,
}

func TestNotifierShapesNotifications(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	notifier := New(sink, breakerConfig, nil)

	executed := decimal.NewFromInt(50000)
	order := models.Order{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		Symbol:        "BTC",
		Side:          models.SideBuy,
		Type:          models.TypeLimit,
		Price:         executed,
		Quantity:      decimal.NewFromInt(1),
		ExecutedPrice: &executed,
		Status:        models.StatusFilled,
		Version:       1,
	}
	portfolio := models.Portfolio{
		OwnerID:     order.OwnerID,
		CashBalance: decimal.NewFromInt(950000),
		Positions: map[string]models.Position{
			"ETH": {Symbol: "ETH", Quantity: decimal.NewFromInt(2), AverageCost: decimal.NewFromInt(3000)},
			"BTC": {Symbol: "BTC", Quantity: decimal.NewFromInt(1), AverageCost: executed},
		},
		Version: 3,
	}

	require.NoError(t, notifier.NotifyOrderCreated(ctx, order))
	require.NoError(t, notifier.NotifyOrderUpdated(ctx, order))
	require.NoError(t, notifier.NotifyPortfolioUpdated(ctx, portfolio))

	require.Len(t, sink.sent, 3)
	assert.Equal(t, KindOrderCreated, sink.sent[0].Kind)
	assert.Equal(t, KindOrderUpdated, sink.sent[1].Kind)
	assert.Equal(t, "50000", sink.sent[1].Order.ExecutedPrice)
	assert.Equal(t, "FILLED", sink.sent[1].Order.Status)

	update := sink.sent[2]
	assert.Equal(t, KindPortfolioUpdated, update.Kind)
	assert.Equal(t, order.OwnerID, update.OwnerID)
	require.NotNil(t, update.Portfolio)
	assert.Equal(t, "950000", update.Portfolio.CashBalance)
	require.Len(t, update.Portfolio.Positions, 2)
	assert.Equal(t, "BTC", update.Portfolio.Positions[0].Symbol)
	assert.Equal(t, "ETH", update.Portfolio.Positions[1].Symbol)
}

func TestNotifierOpensBreaker(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("sink unavailable")}
	notifier := New(sink, breakerConfig, nil)
	order := models.Order{ID: uuid.New(), OwnerID: uuid.New()}

	for i := 0; i < 2; i++ {
		err := notifier.NotifyOrderCreated(ctx, order)
		assert.ErrorIs(t, err, sink.err)
	}

	sink.err = nil
	err := notifier.NotifyOrderCreated(ctx, order)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Empty(t, sink.sent)
}

func TestLogSinkAcceptsEverything(t *testing.T) {
	notifier := New(LogSink{}, breakerConfig, nil)

	assert.NoError(t, notifier.NotifyPortfolioUpdated(context.Background(), models.Portfolio{OwnerID: uuid.New()}))
}
