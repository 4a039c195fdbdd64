//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/metrics"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	"github.com/nastyazhadan/trading-hub/internal/services/matching"
	"github.com/nastyazhadan/trading-hub/internal/services/mocks"
	svcPortfolio "github.com/nastyazhadan/trading-hub/internal/services/portfolio"
	"github.com/nastyazhadan/trading-hub/internal/services/settlement"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

func TestMain(m *testing.M) {
	zapLogger.SetNopLogger()
	m.Run()
}

func newPortfolio(t *testing.T, ctx context.Context, st *Suite, balance string) models.Portfolio {
	t.Helper()

	portfolio, err := models.NewPortfolio(uuid.New(), decimal.RequireFromString(balance), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, st.Store.Portfolios().Create(ctx, portfolio))

	return portfolio
}

func newLimit(t *testing.T, ctx context.Context, st *Suite, owner uuid.UUID, side models.Side, price, quantity string) models.Order {
	t.Helper()

	order, err := models.NewOrder(models.PlaceCommand{
		OwnerID:  owner,
		Symbol:   "BTC",
		Side:     side,
		Type:     models.TypeLimit,
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(quantity),
	}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, st.Store.Orders().Create(ctx, order))

	return order
}

func newCoordinator(st *Suite) *settlement.Coordinator {
	notifier := &mocks.MockNotifier{}
	notifier.On("NotifyOrderUpdated", mock.Anything, mock.Anything).Return(nil).Maybe()
	publisher := &mocks.MockEventPublisher{}
	publisher.On("PublishOrderExecuted", mock.Anything, mock.Anything).Return(nil).Maybe()

	return settlement.NewCoordinator(
		st.Store,
		matching.NewEvaluator(st.Store.Orders()),
		notifier,
		publisher,
		metrics.New(),
		5,
	)
}

func TestOrderStore(test *testing.T) {
	ctx, st := NewSuite(test)
	orders := st.Store.Orders()
	owner := uuid.New()

	order := newLimit(test, ctx, st, owner, models.SideBuy, "100.5", "2")

	test.Run("get returns stored order", func(t *testing.T) {
		stored, err := orders.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, stored.ID)
		assert.Equal(t, "BTC", stored.Symbol)
		assert.True(t, order.Price.Equal(stored.Price))
		assert.Nil(t, stored.ExecutedPrice)
		assert.Equal(t, models.StatusPending, stored.Status)
	})

	test.Run("duplicate create", func(t *testing.T) {
		err := orders.Create(ctx, order)
		assert.ErrorIs(t, err, repositoryErrors.ErrOrderAlreadyExists)
	})

	test.Run("unknown order", func(t *testing.T) {
		_, err := orders.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, repositoryErrors.ErrOrderNotFound)

		_, err = orders.Update(ctx, models.Order{ID: uuid.New()})
		assert.ErrorIs(t, err, repositoryErrors.ErrOrderNotFound)
	})

	test.Run("matchable by reference price", func(t *testing.T) {
		matchable, err := orders.FindMatchable(ctx, "BTC", decimal.NewFromInt(100))
		require.NoError(t, err)
		require.Len(t, matchable, 1)
		assert.Equal(t, order.ID, matchable[0].ID)

		matchable, err = orders.FindMatchable(ctx, "BTC", decimal.NewFromInt(101))
		require.NoError(t, err)
		assert.Empty(t, matchable)
	})

	test.Run("update is compare and swap", func(t *testing.T) {
		fresh, err := orders.Get(ctx, order.ID)
		require.NoError(t, err)
		stale := fresh

		require.NoError(t, fresh.Fill(time.Now().UTC()))
		version, err := orders.Update(ctx, fresh)
		require.NoError(t, err)
		assert.Equal(t, fresh.Version+1, version)

		require.NoError(t, stale.Cancel(owner, time.Now().UTC()))
		_, err = orders.Update(ctx, stale)
		assert.ErrorIs(t, err, repositoryErrors.ErrVersionConflict)

		stored, err := orders.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFilled, stored.Status)
		require.NotNil(t, stored.ExecutedPrice)
		assert.Equal(t, "100.5", stored.ExecutedPrice.String())
	})

	test.Run("filled without settlement is listed", func(t *testing.T) {
		unsettled, err := orders.ListFilledUnsettled(ctx, repository.OrderCursor{}, 10)
		require.NoError(t, err)
		require.Len(t, unsettled, 1)
		assert.Equal(t, order.ID, unsettled[0].ID)

		unsettled, err = orders.ListFilledUnsettled(ctx, repository.CursorOf(unsettled[0]), 10)
		require.NoError(t, err)
		assert.Empty(t, unsettled)
	})

	test.Run("list by owner most recent first", func(t *testing.T) {
		second := newLimit(t, ctx, st, owner, models.SideSell, "200", "1")

		listed, err := orders.ListByOwner(ctx, owner, 0)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, second.ID, listed[0].ID)

		listed, err = orders.ListByOwner(ctx, owner, 1)
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})
}

func TestPortfolioStore(test *testing.T) {
	ctx, st := NewSuite(test)
	portfolios := st.Store.Portfolios()
	portfolio := newPortfolio(test, ctx, st, "1000")

	test.Run("duplicate owner", func(t *testing.T) {
		again, err := models.NewPortfolio(portfolio.OwnerID, decimal.NewFromInt(5), time.Now().UTC())
		require.NoError(t, err)
		assert.ErrorIs(t, portfolios.Create(ctx, again), repositoryErrors.ErrPortfolioAlreadyExists)
	})

	test.Run("unknown owner", func(t *testing.T) {
		_, err := portfolios.GetByOwner(ctx, uuid.New())
		assert.ErrorIs(t, err, repositoryErrors.ErrPortfolioNotFound)
	})

	test.Run("lock requires transaction", func(t *testing.T) {
		_, err := portfolios.LockByOwner(ctx, portfolio.OwnerID)
		assert.ErrorIs(t, err, repositoryErrors.ErrNoTransaction)

		_, err = portfolios.Save(ctx, portfolio)
		assert.ErrorIs(t, err, repositoryErrors.ErrNoTransaction)
	})

	test.Run("save writes positions and bumps version", func(t *testing.T) {
		err := st.Store.WithinTransaction(ctx, func(ctx context.Context) error {
			locked, err := portfolios.LockByOwner(ctx, portfolio.OwnerID)
			if err != nil {
				return err
			}
			if err := locked.ProcessBuy("ETH", decimal.NewFromInt(3), decimal.NewFromInt(100), decimal.NewFromInt(300)); err != nil {
				return err
			}
			_, err = portfolios.Save(ctx, locked)
			return err
		})
		require.NoError(t, err)

		stored, err := portfolios.GetByOwner(ctx, portfolio.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, "700", stored.CashBalance.String())
		assert.Equal(t, int64(1), stored.Version)
		position, found := stored.Position("ETH")
		require.True(t, found)
		assert.Equal(t, "3", position.Quantity.String())
	})

	test.Run("rollback discards changes", func(t *testing.T) {
		err := st.Store.WithinTransaction(ctx, func(ctx context.Context) error {
			locked, err := portfolios.LockByOwner(ctx, portfolio.OwnerID)
			if err != nil {
				return err
			}
			locked.CashBalance = decimal.Zero
			if _, err := portfolios.Save(ctx, locked); err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		stored, err := portfolios.GetByOwner(ctx, portfolio.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, "700", stored.CashBalance.String())
	})
}

func TestRemediationStore(test *testing.T) {
	ctx, st := NewSuite(test)
	queue := st.Store.Remediations()

	for _, kind := range []models.RemediationKind{models.RemediationKindProvisioning, models.RemediationKindSettlement} {
		require.NoError(test, queue.Enqueue(ctx, models.Remediation{
			ID:        uuid.New(),
			Kind:      kind,
			SubjectID: uuid.New(),
			Reason:    gofakeit.Sentence(5),
			Attempts:  gofakeit.Number(1, 5),
			CreatedAt: time.Now().UTC(),
		}))
	}

	all, err := queue.List(ctx, models.RemediationKindUnspecified, 0)
	require.NoError(test, err)
	assert.Len(test, all, 2)

	settlements, err := queue.List(ctx, models.RemediationKindSettlement, 0)
	require.NoError(test, err)
	require.Len(test, settlements, 1)
	assert.Equal(test, models.RemediationKindSettlement, settlements[0].Kind)
}

func TestSettlementOnPostgres(test *testing.T) {
	ctx, st := NewSuite(test)
	coordinator := newCoordinator(st)
	portfolios := svcPortfolio.NewService(st.Store.Portfolios(), st.Store.Settlements(), st.Store)

	owner := newPortfolio(test, ctx, st, "1000000")
	order := newLimit(test, ctx, st, owner.OwnerID, models.SideBuy, "50000", "1")

	settled, err := coordinator.ExecuteOrdersAtPrice(ctx, "BTC", decimal.NewFromInt(49000))
	require.NoError(test, err)
	assert.Equal(test, 1, settled)

	portfolio, err := portfolios.GetPortfolio(ctx, owner.OwnerID)
	require.NoError(test, err)
	assert.Equal(test, "950000", portfolio.CashBalance.String())

	applied, err := st.Store.Settlements().HasSettlement(ctx, order.ID)
	require.NoError(test, err)
	assert.True(test, applied)
	require.NoError(test, portfolios.VerifyPortfolio(ctx, owner.OwnerID))

	settled, err = coordinator.ExecuteOrdersAtPrice(ctx, "BTC", decimal.NewFromInt(49000))
	require.NoError(test, err)
	assert.Zero(test, settled)
	assert.Equal(test, 1, st.CountRows(ctx, "settlements"))
}

func TestConcurrentSettlementOnPostgres(test *testing.T) {
	ctx, st := NewSuite(test)
	coordinator := newCoordinator(st)

	const orders = 10
	owner := newPortfolio(test, ctx, st, "1000")
	placed := make([]models.Order, 0, orders)
	for range orders {
		placed = append(placed, newLimit(test, ctx, st, owner.OwnerID, models.SideBuy, "10", "1"))
	}

	var wg sync.WaitGroup
	for _, order := range placed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.ExecuteOrder(ctx, order)
			assert.NoError(test, err)
		}()
	}
	wg.Wait()

	portfolio, err := st.Store.Portfolios().GetByOwner(ctx, owner.OwnerID)
	require.NoError(test, err)
	assert.Equal(test, "900", portfolio.CashBalance.String())
	assert.Equal(test, int64(orders), portfolio.Version)

	position, found := portfolio.Position("BTC")
	require.True(test, found)
	assert.Equal(test, "10", position.Quantity.String())
	assert.Equal(test, orders, st.CountRows(ctx, "settlements"))
}

func TestReadTransactionOnPostgres(test *testing.T) {
	ctx, st := NewSuite(test)
	owner := newPortfolio(test, ctx, st, "1000")

	other, err := models.NewPortfolio(uuid.New(), decimal.NewFromInt(10), time.Now().UTC())
	require.NoError(test, err)

	err = st.Store.WithinReadTransaction(ctx, func(ctx context.Context) error {
		portfolio, err := st.Store.Portfolios().GetByOwner(ctx, owner.OwnerID)
		require.NoError(test, err)
		assert.Equal(test, owner.ID, portfolio.ID)

		return st.Store.Portfolios().Create(ctx, other)
	})
	assert.Error(test, err)

	_, err = st.Store.Portfolios().GetByOwner(ctx, other.OwnerID)
	assert.ErrorIs(test, err, repositoryErrors.ErrPortfolioNotFound)
}
