package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/storage/memory"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
)

func settle(t *testing.T, store *memory.Store, ownerID uuid.UUID, side models.Side, price, quantity int64) {
	t.Helper()

	err := store.WithinTransaction(context.Background(), func(ctx context.Context) error {
		portfolio, err := store.Portfolios().LockByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		p, q := decimal.NewFromInt(price), decimal.NewFromInt(quantity)
		order := models.Order{ID: uuid.New(), OwnerID: ownerID, Symbol: "BTC", Side: side, Quantity: q, ExecutedPrice: &p}
		leg, err := order.Leg()
		if err != nil {
			return err
		}

		if side == models.SideBuy {
			err = portfolio.ProcessBuy("BTC", q, p, leg.Amount())
		} else {
			err = portfolio.ProcessSell("BTC", q, p, leg.Amount())
		}
		if err != nil {
			return err
		}

		if _, err := store.Portfolios().Save(ctx, portfolio); err != nil {
			return err
		}
		return store.Settlements().RecordSettlement(ctx, models.NewSettlement(order, portfolio, leg, time.Now().UTC()))
	})
	require.NoError(t, err)
}

func TestGetPortfolio(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	portfolio, err := models.NewPortfolio(uuid.New(), decimal.NewFromInt(500), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Portfolios().Create(ctx, portfolio))

	service := NewService(store.Portfolios(), store.Settlements(), store)

	got, err := service.GetPortfolio(ctx, portfolio.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, portfolio.ID, got.ID)

	_, err = service.GetPortfolio(ctx, uuid.New())
	assert.ErrorIs(t, err, serviceErrors.ErrPortfolioNotFound)
}

func TestVerifyPortfolioMatchesJournal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	portfolio, err := models.NewPortfolio(uuid.New(), decimal.NewFromInt(10000), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Portfolios().Create(ctx, portfolio))

	settle(t, store, portfolio.OwnerID, models.SideBuy, 100, 3)
	settle(t, store, portfolio.OwnerID, models.SideBuy, 110, 4)
	settle(t, store, portfolio.OwnerID, models.SideSell, 130, 2)

	service := NewService(store.Portfolios(), store.Settlements(), store)
	assert.NoError(t, service.VerifyPortfolio(ctx, portfolio.OwnerID))
}

func TestVerifyPortfolioDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	portfolio, err := models.NewPortfolio(uuid.New(), decimal.NewFromInt(10000), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Portfolios().Create(ctx, portfolio))

	settle(t, store, portfolio.OwnerID, models.SideBuy, 100, 1)

	err = store.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := store.Portfolios().LockByOwner(ctx, portfolio.OwnerID)
		if err != nil {
			return err
		}
		locked.CashBalance = locked.CashBalance.Add(decimal.NewFromInt(1))
		_, err = store.Portfolios().Save(ctx, locked)
		return err
	})
	require.NoError(t, err)

	service := NewService(store.Portfolios(), store.Settlements(), store)
	err = service.VerifyPortfolio(ctx, portfolio.OwnerID)

	var divergence *Divergence
	require.True(t, errors.As(err, &divergence))
	assert.Equal(t, "9901", divergence.Stored.CashBalance.String())
	assert.Equal(t, "9900", divergence.Replayed.CashBalance.String())
	assert.ErrorIs(t, err, serviceErrors.ErrPortfolioDiverged)
}

func TestVerifyPortfolioDuringSettlements(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	portfolio, err := models.NewPortfolio(uuid.New(), decimal.NewFromInt(100000), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Portfolios().Create(ctx, portfolio))

	service := NewService(store.Portfolios(), store.Settlements(), store)

	stop := make(chan struct{})
	failures := make(chan error, 1)
	go func() {
		defer close(failures)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := service.VerifyPortfolio(ctx, portfolio.OwnerID); err != nil {
				failures <- err
				return
			}
		}
	}()

	for range 50 {
		settle(t, store, portfolio.OwnerID, models.SideBuy, 10, 1)
	}
	close(stop)

	assert.NoError(t, <-failures)
}
