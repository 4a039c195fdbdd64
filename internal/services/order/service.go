package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type RateLimiter interface {
	Allow(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order models.Order) error
	NotifyOrderUpdated(ctx context.Context, order models.Order) error
}

type EventPublisher interface {
	PublishOrderExecuted(ctx context.Context, event models.OrderExecuted) error
}

type Service struct {
	store       repository.Store
	rateLimiter RateLimiter
	notifier    Notifier
	publisher   EventPublisher
	metrics     *metrics.Metrics
	tracer      trace.Tracer

	conflictRetries int
	now             func() time.Time
}

func NewService(
	store repository.Store,
	rateLimiter RateLimiter,
	notifier Notifier,
	publisher EventPublisher,
	metrics *metrics.Metrics,
	conflictRetries int,
) *Service {
	return &Service{
		store:           store,
		rateLimiter:     rateLimiter,
		notifier:        notifier,
		publisher:       publisher,
		metrics:         metrics,
		tracer:          otel.Tracer("github.com/nastyazhadan/trading-hub/internal/services/order"),
		conflictRetries: max(conflictRetries, 0),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder accepts an order after checking it against the owner's current
// portfolio. MARKET orders come back FILLED and settle asynchronously.
func (s *Service) PlaceOrder(ctx context.Context, command models.PlaceCommand) (models.Order, error) {
	const op = "Service.PlaceOrder"

	ctx = zapLogger.ContextWithOwnerID(ctx, command.OwnerID.String())
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("owner_id", command.OwnerID.String()),
		attribute.String("symbol", command.Symbol),
	))
	defer span.End()

	order, err := s.placeOrder(ctx, command)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order")
		s.metrics.OrderRejected(rejectionReason(err))
		return models.Order{}, fmt.Errorf("%s: %w", op, s.public(ctx, op, err))
	}

	s.metrics.OrderPlaced(order.Type.String(), order.Side.String())
	span.SetAttributes(attribute.String("order_id", order.ID.String()))

	zapLogger.Info(ctx, "order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side.String()),
		zap.String("type", order.Type.String()),
		zap.String("status", order.Status.String()),
	)

	if err := s.notifier.NotifyOrderCreated(ctx, order); err != nil {
		zapLogger.Warn(ctx, "order created notification failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	if order.Status == models.StatusFilled {
		if err := s.publisher.PublishOrderExecuted(ctx, models.NewOrderExecuted(order)); err != nil {
			zapLogger.Error(ctx, "failed to publish order executed event",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}

	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, command models.PlaceCommand) (models.Order, error) {
	if err := s.checkRateLimit(ctx, command.OwnerID); err != nil {
		return models.Order{}, err
	}

	if err := command.Validate(); err != nil {
		return models.Order{}, err
	}

	portfolio, err := s.store.Portfolios().GetByOwner(ctx, command.OwnerID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrPortfolioNotFound) {
			return models.Order{}, serviceErrors.ErrPortfolioNotFound
		}
		return models.Order{}, err
	}

	switch command.Side {
	case models.SideBuy:
		err = portfolio.CanBuy(command.Notional())
	case models.SideSell:
		err = portfolio.CanSell(models.NormalizeSymbol(command.Symbol), command.Quantity)
	}
	if err != nil {
		return models.Order{}, err
	}

	order, err := models.NewOrder(command, s.now())
	if err != nil {
		return models.Order{}, err
	}

	if err := s.store.Orders().Create(ctx, order); err != nil {
		return models.Order{}, err
	}

	return order, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID) (models.Order, error) {
	const op = "Service.CancelOrder"

	ctx = zapLogger.ContextWithOwnerID(ctx, ownerID.String())
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
	))
	defer span.End()

	var (
		cancelled models.Order
		err       error
	)
	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		cancelled, err = s.cancelOnce(ctx, orderID, ownerID)
		if !errors.Is(err, repositoryErrors.ErrVersionConflict) {
			break
		}
		s.metrics.VersionConflict()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel order")
		s.metrics.OrderRejected(rejectionReason(err))
		return models.Order{}, fmt.Errorf("%s: %w", op, s.public(ctx, op, err))
	}

	zapLogger.Info(ctx, "order cancelled",
		zap.String("order_id", cancelled.ID.String()),
	)

	if err := s.notifier.NotifyOrderUpdated(ctx, cancelled); err != nil {
		zapLogger.Warn(ctx, "order updated notification failed",
			zap.String("order_id", cancelled.ID.String()),
			zap.Error(err),
		)
	}

	return cancelled, nil
}

func (s *Service) cancelOnce(ctx context.Context, orderID, ownerID uuid.UUID) (models.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrOrderNotFound) {
			return models.Order{}, serviceErrors.ErrOrderNotFound
		}
		return models.Order{}, err
	}

	if err := order.Cancel(ownerID, s.now()); err != nil {
		return models.Order{}, err
	}

	version, err := s.store.Orders().Update(ctx, order)
	if err != nil {
		return models.Order{}, err
	}
	order.Version = version

	return order, nil
}

// GetOrder hides orders of other owners behind ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, orderID, ownerID uuid.UUID) (models.Order, error) {
	const op = "Service.GetOrder"

	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrOrderNotFound) {
			return models.Order{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
		}
		return models.Order{}, fmt.Errorf("%s: %w", op, s.public(ctx, op, err))
	}

	if order.OwnerID != ownerID {
		return models.Order{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
	}

	return order, nil
}

// ListOrders returns the owner's orders, most recent first.
func (s *Service) ListOrders(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Order, error) {
	const op = "Service.ListOrders"

	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%s: %w", op, domainErrors.Validation("owner_id", "is required"))
	}

	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	orders, err := s.store.Orders().ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, s.public(ctx, op, err))
	}

	return orders, nil
}

func (s *Service) checkRateLimit(ctx context.Context, ownerID uuid.UUID) error {
	if s.rateLimiter == nil {
		return nil
	}

	allowed, err := s.rateLimiter.Allow(ctx, ownerID)
	if err != nil {
		return err
	}
	if !allowed {
		return serviceErrors.ErrRateLimitExceeded
	}

	return nil
}

func (s *Service) public(ctx context.Context, op string, err error) error {
	public := serviceErrors.Public(err)
	if errors.Is(public, serviceErrors.ErrInternal) {
		zapLogger.Error(ctx, "unexpected order service failure",
			zap.String("op", op),
			zap.Error(err),
		)
	}

	return public
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, serviceErrors.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, domainErrors.ErrValidation):
		return "validation"
	case errors.Is(err, domainErrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domainErrors.ErrInsufficientAsset):
		return "insufficient_asset"
	case errors.Is(err, domainErrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domainErrors.ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, serviceErrors.ErrPortfolioNotFound), errors.Is(err, serviceErrors.ErrOrderNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
