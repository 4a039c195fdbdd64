package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type PortfolioNotifier interface {
	NotifyPortfolioUpdated(ctx context.Context, portfolio models.Portfolio) error
}

// ExecutedHandler is the secondary step of settlement. It applies the
// portfolio effect of a FILLED order that has no journal row yet, which is
// how MARKET orders settle, and tells the owner about the new portfolio.
type ExecutedHandler struct {
	coordinator *Coordinator
	notifier    PortfolioNotifier
}

func NewExecutedHandler(coordinator *Coordinator, notifier PortfolioNotifier) *ExecutedHandler {
	return &ExecutedHandler{
		coordinator: coordinator,
		notifier:    notifier,
	}
}

// Handle never returns an error: the order row stays authoritative and a
// failure is left to the remediation queue and the reconciler.
func (h *ExecutedHandler) Handle(ctx context.Context, event models.OrderExecuted) {
	const op = "ExecutedHandler.Handle"

	ctx, span := h.coordinator.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order_id", event.OrderID.String()),
	))
	defer span.End()

	portfolio, err := h.Apply(ctx, event.OrderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply")

		zapLogger.Error(ctx, "secondary settlement failed",
			zap.String("order_id", event.OrderID.String()),
			zap.String("owner_id", event.OwnerID.String()),
			zap.Error(err),
		)
		h.remediate(ctx, event.OrderID, err)
		return
	}

	if err := h.notifier.NotifyPortfolioUpdated(ctx, portfolio); err != nil {
		zapLogger.Warn(ctx, "portfolio update notification failed",
			zap.String("owner_id", portfolio.OwnerID.String()),
			zap.Error(err),
		)
	}
}

// Apply settles orderID if it is FILLED and not journaled yet, and returns the
// owner's portfolio as committed.
func (h *ExecutedHandler) Apply(ctx context.Context, orderID uuid.UUID) (models.Portfolio, error) {
	const op = "ExecutedHandler.Apply"

	c := h.coordinator

	var (
		portfolio models.Portfolio
		err       error
	)
	for attempt := 0; attempt <= c.conflictRetries; attempt++ {
		portfolio, err = h.applyOnce(ctx, orderID)
		if !errors.Is(err, repositoryErrors.ErrVersionConflict) {
			break
		}
		c.metrics.VersionConflict()
	}
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return portfolio, nil
}

func (h *ExecutedHandler) applyOnce(ctx context.Context, orderID uuid.UUID) (models.Portfolio, error) {
	c := h.coordinator

	var portfolio models.Portfolio
	err := c.store.WithinTransaction(ctx, func(ctx context.Context) error {
		order, err := c.store.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.StatusFilled {
			return fmt.Errorf("%w: order %s is %s", domainErrors.ErrStateConflict, order.ID, order.Status)
		}

		portfolio, err = c.applyLeg(ctx, order)
		if errors.Is(err, repositoryErrors.ErrSettlementAlreadyApplied) {
			return nil
		}
		if err == nil {
			zapLogger.Info(ctx, "order settled",
				zap.String("order_id", order.ID.String()),
				zap.String("owner_id", order.OwnerID.String()),
				zap.String("cash_balance", portfolio.CashBalance.String()),
			)
		}
		return err
	})

	return portfolio, err
}

func (h *ExecutedHandler) remediate(ctx context.Context, orderID uuid.UUID, cause error) {
	remediation := models.Remediation{
		ID:        uuid.New(),
		Kind:      models.RemediationKindSettlement,
		SubjectID: orderID,
		Reason:    cause.Error(),
		Attempts:  1,
		CreatedAt: h.coordinator.now(),
	}

	if err := h.coordinator.store.Remediations().Enqueue(ctx, remediation); err != nil {
		zapLogger.Error(ctx, "failed to enqueue settlement remediation",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return
	}

	h.coordinator.metrics.RemediationEnqueued(remediation.Kind.String())
}
