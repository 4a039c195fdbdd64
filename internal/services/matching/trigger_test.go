package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/services/mocks"
	"github.com/nastyazhadan/trading-hub/internal/storage/memory"
	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
)

func TestTriggerProcessesTicksInOrder(t *testing.T) {
	settler := &mocks.MockSettler{}
	processed := make(chan string, 3)
	settler.On("ExecuteOrdersAtPrice", mock.Anything, "BTC", mock.AnythingOfType("decimal.Decimal")).
		Run(func(args mock.Arguments) {
			processed <- args.Get(2).(decimal.Decimal).String()
		}).
		Return(0, nil)

	cache := memory.NewPriceCache()
	trigger := NewTrigger(settler, cache, 8, time.Minute)
	trigger.Start(context.Background())
	defer func() {
		require.NoError(t, trigger.Stop(context.Background()))
	}()

	for _, price := range []int64{100, 101, 102} {
		err := trigger.OnPriceTick(context.Background(), models.PriceTick{Symbol: "btc", Price: decimal.NewFromInt(price)})
		require.NoError(t, err)
	}

	for _, expected := range []string{"100", "101", "102"} {
		select {
		case got := <-processed:
			assert.Equal(t, expected, got)
		case <-time.After(time.Second):
			t.Fatalf("tick %s was not processed", expected)
		}
	}

	require.Eventually(t, func() bool {
		tick, err := cache.GetPrice(context.Background(), "BTC")
		return err == nil && tick.Price.Equal(decimal.NewFromInt(102))
	}, time.Second, 10*time.Millisecond)
}

func TestTriggerRerunAtLastPrice(t *testing.T) {
	ctx := context.Background()
	settler := &mocks.MockSettler{}
	settler.On("ExecuteOrdersAtPrice", mock.Anything, "ETH", decimal.NewFromInt(3000)).Return(2, nil).Once()

	cache := memory.NewPriceCache()
	require.NoError(t, cache.SetPrice(ctx, models.PriceTick{Symbol: "ETH", Price: decimal.NewFromInt(3000), ObservedAt: time.Now()}, time.Minute))

	trigger := NewTrigger(settler, cache, 1, time.Minute)

	settled, err := trigger.RerunAtLastPrice(ctx, "eth")
	require.NoError(t, err)
	assert.Equal(t, 2, settled)
	settler.AssertExpectations(t)
}

func TestTriggerRerunWithoutPrice(t *testing.T) {
	settler := &mocks.MockSettler{}
	trigger := NewTrigger(settler, memory.NewPriceCache(), 1, time.Minute)

	_, err := trigger.RerunAtLastPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, serviceErrors.ErrPriceUnavailable)
	settler.AssertNotCalled(t, "ExecuteOrdersAtPrice", mock.Anything, mock.Anything, mock.Anything)
}

func TestTriggerRejectsTicksWhenStopped(t *testing.T) {
	trigger := NewTrigger(&mocks.MockSettler{}, memory.NewPriceCache(), 1, time.Minute)

	err := trigger.OnPriceTick(context.Background(), models.PriceTick{Symbol: "BTC", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, serviceErrors.ErrTriggerStopped)

	trigger.Start(context.Background())
	require.NoError(t, trigger.Stop(context.Background()))

	err = trigger.OnPriceTick(context.Background(), models.PriceTick{Symbol: "BTC", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, serviceErrors.ErrTriggerStopped)
}

func TestTriggerRejectsInvalidTicks(t *testing.T) {
	ctx := context.Background()
	settler := &mocks.MockSettler{}
	settler.On("ExecuteOrdersAtPrice", mock.Anything, "BTC", mock.Anything).Return(0, nil)

	cache := memory.NewPriceCache()
	trigger := NewTrigger(settler, cache, 8, time.Minute)
	trigger.Start(ctx)
	defer func() {
		require.NoError(t, trigger.Stop(ctx))
	}()

	require.NoError(t, trigger.OnPriceTick(ctx, models.PriceTick{Symbol: "BTC", Price: decimal.NewFromInt(100)}))
	require.Eventually(t, func() bool {
		_, err := cache.GetPrice(ctx, "BTC")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	tests := []struct {
		name string
		tick models.PriceTick
	}{
		{name: "zero price", tick: models.PriceTick{Symbol: "BTC", Price: decimal.Zero}},
		{name: "negative price", tick: models.PriceTick{Symbol: "BTC", Price: decimal.NewFromInt(-5)}},
		{name: "blank symbol", tick: models.PriceTick{Symbol: "  ", Price: decimal.NewFromInt(100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := trigger.OnPriceTick(ctx, tt.tick)
			assert.ErrorIs(t, err, domainErrors.ErrValidation)
		})
	}

	tick, err := cache.GetPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "100", tick.Price.String())

	_, err = trigger.RerunAtLastPrice(ctx, "BTC")
	require.NoError(t, err)
	settler.AssertNotCalled(t, "ExecuteOrdersAtPrice", mock.Anything, "BTC", decimal.NewFromInt(-5))
}

func TestTriggerSurvivesSettlerError(t *testing.T) {
	settler := &mocks.MockSettler{}
	calls := make(chan struct{}, 2)
	settler.On("ExecuteOrdersAtPrice", mock.Anything, "BTC", mock.Anything).
		Run(func(mock.Arguments) { calls <- struct{}{} }).
		Return(0, errors.New("boom"))

	trigger := NewTrigger(settler, memory.NewPriceCache(), 4, time.Minute)
	trigger.Start(context.Background())
	defer func() {
		_ = trigger.Stop(context.Background())
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, trigger.OnPriceTick(context.Background(), models.PriceTick{Symbol: "BTC", Price: decimal.NewFromInt(5)}))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("trigger stopped processing after an error")
		}
	}
}
