package exchange

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

// Exchange is the inbound surface a transport adapter calls into. Errors it
// returns are either known business errors or ErrInternal.
type Exchange struct {
	container *DiContainer
}

func NewExchange(container *DiContainer) *Exchange {
	return &Exchange{container: container}
}

func (e *Exchange) AccountCreated(ctx context.Context, ownerID uuid.UUID) error {
	const op = "Exchange.AccountCreated"

	return public(ctx, op, e.container.Provisioner().AccountCreated(ctx, ownerID))
}

func (e *Exchange) PlaceOrder(ctx context.Context, command models.PlaceCommand) (models.Order, error) {
	const op = "Exchange.PlaceOrder"

	order, err := e.container.OrderService().PlaceOrder(ctx, command)
	return order, public(ctx, op, err)
}

func (e *Exchange) CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID) (models.Order, error) {
	const op = "Exchange.CancelOrder"

	order, err := e.container.OrderService().CancelOrder(ctx, orderID, ownerID)
	return order, public(ctx, op, err)
}

func (e *Exchange) GetOrder(ctx context.Context, orderID, ownerID uuid.UUID) (models.Order, error) {
	const op = "Exchange.GetOrder"

	order, err := e.container.OrderService().GetOrder(ctx, orderID, ownerID)
	return order, public(ctx, op, err)
}

func (e *Exchange) ListOrders(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Order, error) {
	const op = "Exchange.ListOrders"

	orders, err := e.container.OrderService().ListOrders(ctx, ownerID, limit)
	return orders, public(ctx, op, err)
}

func (e *Exchange) GetPortfolio(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error) {
	const op = "Exchange.GetPortfolio"

	portfolio, err := e.container.PortfolioService().GetPortfolio(ctx, ownerID)
	return portfolio, public(ctx, op, err)
}

func (e *Exchange) VerifyPortfolio(ctx context.Context, ownerID uuid.UUID) error {
	const op = "Exchange.VerifyPortfolio"

	return public(ctx, op, e.container.PortfolioService().VerifyPortfolio(ctx, ownerID))
}

// OnPriceTick queues the tick for the matching trigger.
func (e *Exchange) OnPriceTick(ctx context.Context, tick models.PriceTick) error {
	const op = "Exchange.OnPriceTick"

	return public(ctx, op, e.container.Trigger().OnPriceTick(ctx, tick))
}

func (e *Exchange) RerunAtLastPrice(ctx context.Context, symbol string) (int, error) {
	const op = "Exchange.RerunAtLastPrice"

	settled, err := e.container.Trigger().RerunAtLastPrice(ctx, symbol)
	return settled, public(ctx, op, err)
}

// ExecuteOrdersAtPrice settles synchronously, bypassing the trigger queue.
func (e *Exchange) ExecuteOrdersAtPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	const op = "Exchange.ExecuteOrdersAtPrice"

	settled, err := e.container.Coordinator().ExecuteOrdersAtPrice(ctx, symbol, price)
	return settled, public(ctx, op, err)
}

func (e *Exchange) Reconcile(ctx context.Context) (int, error) {
	const op = "Exchange.Reconcile"

	applied, err := e.container.Reconciler().Reconcile(ctx)
	return applied, public(ctx, op, err)
}

func public(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	mapped := serviceErrors.Public(err)
	if errors.Is(mapped, serviceErrors.ErrInternal) {
		zapLogger.Error(ctx, "unexpected exchange failure",
			zap.String("op", op),
			zap.Error(err),
		)
	}

	return mapped
}
