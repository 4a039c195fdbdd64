package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/metrics"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

const tracerName = "github.com/nastyazhadan/trading-hub/internal/services/settlement"

type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error)
}

type OrderNotifier interface {
	NotifyOrderUpdated(ctx context.Context, order models.Order) error
}

type EventPublisher interface {
	PublishOrderExecuted(ctx context.Context, event models.OrderExecuted) error
}

type Coordinator struct {
	store     repository.Store
	evaluator Evaluator
	notifier  OrderNotifier
	publisher EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	conflictRetries int
	now             func() time.Time
}

func NewCoordinator(
	store repository.Store,
	evaluator Evaluator,
	notifier OrderNotifier,
	publisher EventPublisher,
	metrics *metrics.Metrics,
	conflictRetries int,
) *Coordinator {
	if conflictRetries < 0 {
		conflictRetries = 0
	}

	return &Coordinator{
		store:           store,
		evaluator:       evaluator,
		notifier:        notifier,
		publisher:       publisher,
		metrics:         metrics,
		tracer:          otel.Tracer(tracerName),
		conflictRetries: conflictRetries,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteOrdersAtPrice settles every order eligible at price. Lost races are
// skipped, unaffordable orders are marked FAILED, and any other failure is
// reported as an ExecutionError without stopping the rest of the batch.
func (c *Coordinator) ExecuteOrdersAtPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	const op = "Coordinator.ExecuteOrdersAtPrice"

	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("price", price.String()),
	))
	defer span.End()

	candidates, err := c.evaluator.Evaluate(ctx, symbol, price)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate")
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var (
		settled  int
		failures []error
	)
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", op, err))
			break
		}

		_, err := c.ExecuteOrder(ctx, candidate)
		switch {
		case err == nil:
			settled++
		case isLostRace(err):
			zapLogger.Debug(ctx, "candidate no longer executable",
				zap.String("order_id", candidate.ID.String()),
				zap.Error(err),
			)
		case errors.Is(err, domainErrors.ErrInsufficientFunds), errors.Is(err, domainErrors.ErrInsufficientAsset):
			c.failUnaffordable(ctx, candidate.ID, err)
		default:
			executionErr := &serviceErrors.ExecutionError{OrderID: candidate.ID, Err: serviceErrors.Public(err)}
			zapLogger.Error(ctx, "order execution failed",
				zap.String("order_id", candidate.ID.String()),
				zap.String("symbol", candidate.Symbol),
				zap.Error(err),
			)
			failures = append(failures, executionErr)
		}
	}

	c.metrics.BatchSettled(settled)
	span.SetAttributes(attribute.Int("settled", settled), attribute.Int("candidates", len(candidates)))

	if len(failures) > 0 {
		span.SetStatus(codes.Error, "partial failure")
		return settled, errors.Join(failures...)
	}

	return settled, nil
}

// ExecuteOrder fills a resting order and applies it to its owner's portfolio
// in one transaction, retrying on version conflicts.
func (c *Coordinator) ExecuteOrder(ctx context.Context, order models.Order) (models.Order, error) {
	const op = "Coordinator.ExecuteOrder"

	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order_id", order.ID.String()),
	))
	defer span.End()

	started := time.Now()

	var (
		filled    models.Order
		portfolio models.Portfolio
		err       error
	)
	for attempt := 0; attempt <= c.conflictRetries; attempt++ {
		filled, portfolio, err = c.executeOnce(ctx, order.ID)
		if !errors.Is(err, repositoryErrors.ErrVersionConflict) {
			break
		}

		c.metrics.VersionConflict()
		zapLogger.Debug(ctx, "version conflict during execution",
			zap.String("order_id", order.ID.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	if err != nil {
		c.metrics.SettlementResult(outcome(err), time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		return models.Order{}, fmt.Errorf("%s: %w", op, mapError(err))
	}

	c.metrics.SettlementResult("settled", time.Since(started))

	zapLogger.Info(ctx, "order executed",
		zap.String("order_id", filled.ID.String()),
		zap.String("owner_id", filled.OwnerID.String()),
		zap.String("symbol", filled.Symbol),
		zap.String("side", filled.Side.String()),
		zap.String("executed_price", filled.ExecutedPrice.String()),
		zap.String("cash_balance", portfolio.CashBalance.String()),
	)

	c.afterCommit(ctx, filled)

	return filled, nil
}

func (c *Coordinator) executeOnce(ctx context.Context, orderID uuid.UUID) (models.Order, models.Portfolio, error) {
	var (
		filled    models.Order
		portfolio models.Portfolio
	)

	err := c.store.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := c.store.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		if err := current.Fill(c.now()); err != nil {
			return err
		}

		version, err := c.store.Orders().Update(ctx, current)
		if err != nil {
			return err
		}
		current.Version = version

		portfolio, err = c.applyLeg(ctx, current)
		if err != nil {
			return err
		}

		filled = current
		return nil
	})

	return filled, portfolio, err
}

// applyLeg moves cash and assets for a FILLED order under the owner's
// portfolio lock and journals it. It must run inside a transaction.
func (c *Coordinator) applyLeg(ctx context.Context, order models.Order) (models.Portfolio, error) {
	locked, err := c.store.Portfolios().LockByOwner(ctx, order.OwnerID)
	if err != nil {
		return models.Portfolio{}, err
	}

	applied, err := c.store.Settlements().HasSettlement(ctx, order.ID)
	if err != nil {
		return models.Portfolio{}, err
	}
	if applied {
		return locked, repositoryErrors.ErrSettlementAlreadyApplied
	}

	leg, err := order.Leg()
	if err != nil {
		return models.Portfolio{}, err
	}

	next := locked.Clone()
	switch l := leg.(type) {
	case models.BuyLeg:
		err = next.ProcessBuy(l.Symbol, l.Quantity, l.Price, l.TotalCost)
	case models.SellLeg:
		err = next.ProcessSell(l.Symbol, l.Quantity, l.Price, l.TotalProceeds)
	default:
		err = fmt.Errorf("unsupported settlement leg %T", leg)
	}
	if err != nil {
		return models.Portfolio{}, err
	}

	now := c.now()
	next.UpdatedAt = now
	if err := next.CheckInvariants(); err != nil {
		return models.Portfolio{}, err
	}

	version, err := c.store.Portfolios().Save(ctx, next)
	if err != nil {
		return models.Portfolio{}, err
	}
	next.Version = version

	if err := c.store.Settlements().RecordSettlement(ctx, models.NewSettlement(order, next, leg, now)); err != nil {
		return models.Portfolio{}, err
	}

	return next, nil
}

func (c *Coordinator) afterCommit(ctx context.Context, order models.Order) {
	if err := c.notifier.NotifyOrderUpdated(ctx, order); err != nil {
		zapLogger.Warn(ctx, "order update notification failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	if err := c.publisher.PublishOrderExecuted(ctx, models.NewOrderExecuted(order)); err != nil {
		zapLogger.Error(ctx, "failed to publish order executed event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

// failUnaffordable moves an order that can no longer be settled to FAILED.
func (c *Coordinator) failUnaffordable(ctx context.Context, orderID uuid.UUID, cause error) {
	var failed models.Order

	var err error
	for attempt := 0; attempt <= c.conflictRetries; attempt++ {
		err = c.store.WithinTransaction(ctx, func(ctx context.Context) error {
			current, err := c.store.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if err := current.Fail(c.now()); err != nil {
				return err
			}

			version, err := c.store.Orders().Update(ctx, current)
			if err != nil {
				return err
			}
			current.Version = version

			failed = current
			return nil
		})
		if !errors.Is(err, repositoryErrors.ErrVersionConflict) {
			break
		}
	}

	if err != nil {
		if isLostRace(err) {
			return
		}
		zapLogger.Error(ctx, "failed to mark order as failed",
			zap.String("order_id", orderID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}

	zapLogger.Warn(ctx, "order failed at execution",
		zap.String("order_id", orderID.String()),
		zap.Error(cause),
	)

	if err := c.notifier.NotifyOrderUpdated(ctx, failed); err != nil {
		zapLogger.Warn(ctx, "order update notification failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

func isLostRace(err error) bool {
	return errors.Is(err, domainErrors.ErrStateConflict) ||
		errors.Is(err, repositoryErrors.ErrOrderNotFound) ||
		errors.Is(err, repositoryErrors.ErrSettlementAlreadyApplied) ||
		errors.Is(err, serviceErrors.ErrOrderNotFound)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "settled"
	case isLostRace(err):
		return "skipped"
	case errors.Is(err, domainErrors.ErrInsufficientFunds), errors.Is(err, domainErrors.ErrInsufficientAsset):
		return "rejected"
	case errors.Is(err, repositoryErrors.ErrVersionConflict):
		return "conflict"
	default:
		return "failed"
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, repositoryErrors.ErrOrderNotFound):
		return serviceErrors.ErrOrderNotFound
	case errors.Is(err, repositoryErrors.ErrPortfolioNotFound):
		return serviceErrors.ErrPortfolioNotFound
	default:
		return err
	}
}
