package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/metrics"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type Applier interface {
	Apply(ctx context.Context, orderID uuid.UUID) (models.Portfolio, error)
}

// Reconciler finds FILLED orders whose portfolio effect was never journaled
// and applies them, closing the gap left by a lost or failed event.
// Each sweep resumes after the last order of the previous batch and wraps
// around once a batch comes back short.
type Reconciler struct {
	orders   repository.OrderRepository
	applier  Applier
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int

	mu     sync.Mutex
	cursor repository.OrderCursor
}

func NewReconciler(
	orders repository.OrderRepository,
	applier Applier,
	metrics *metrics.Metrics,
	interval time.Duration,
	batch int,
) *Reconciler {
	return &Reconciler{
		orders:   orders,
		applier:  applier,
		metrics:  metrics,
		interval: interval,
		batch:    batch,
	}
}

// Run sweeps on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.Reconcile(ctx)
			if errors.Is(err, context.Canceled) {
				return
			}
			r.metrics.BackgroundTask("reconcile", err)
		}
	}
}

// Reconcile applies one batch and returns how many orders it settled.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	const op = "Reconciler.Reconcile"

	r.mu.Lock()
	defer r.mu.Unlock()

	unsettled, err := r.orders.ListFilledUnsettled(ctx, r.cursor, r.batch)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if r.batch <= 0 || len(unsettled) < r.batch {
		r.cursor = repository.OrderCursor{}
	} else {
		r.cursor = repository.CursorOf(unsettled[len(unsettled)-1])
	}

	var (
		applied  int
		failures []error
	)
	for _, order := range unsettled {
		if _, err := r.applier.Apply(ctx, order.ID); err != nil {
			zapLogger.Error(ctx, "reconciliation failed",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			failures = append(failures, &serviceErrors.ExecutionError{OrderID: order.ID, Err: serviceErrors.Public(err)})
			continue
		}
		applied++
	}

	if len(unsettled) > 0 {
		zapLogger.Info(ctx, "reconciliation sweep finished",
			zap.Int("found", len(unsettled)),
			zap.Int("applied", applied),
		)
	}

	if len(failures) > 0 {
		return applied, fmt.Errorf("%s: %w", op, errors.Join(failures...))
	}

	return applied, nil
}
