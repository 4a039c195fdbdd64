package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/metrics"
	"github.com/nastyazhadan/trading-hub/shared/config"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type Sink interface {
	Send(ctx context.Context, notification Notification) error
}

// Notifier delivers owner notifications through a circuit breaker so a slow
// or failing sink is skipped instead of stalling settlement.
type Notifier struct {
	sink           Sink
	circuitBreaker *gobreaker.CircuitBreaker[struct{}]
	metrics        *metrics.Metrics
	now            func() time.Time
}

func New(sink Sink, cfg config.CircuitBreakerConfig, metrics *metrics.Metrics) *Notifier {
	circuitBreaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zapLogger.Warn(context.Background(), "circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Notifier{
		sink:           sink,
		circuitBreaker: circuitBreaker,
		metrics:        metrics,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (n *Notifier) NotifyOrderCreated(ctx context.Context, order models.Order) error {
	return n.send(ctx, orderNotification(KindOrderCreated, order, n.now()))
}

func (n *Notifier) NotifyOrderUpdated(ctx context.Context, order models.Order) error {
	return n.send(ctx, orderNotification(KindOrderUpdated, order, n.now()))
}

func (n *Notifier) NotifyPortfolioUpdated(ctx context.Context, portfolio models.Portfolio) error {
	return n.send(ctx, portfolioNotification(portfolio, n.now()))
}

func (n *Notifier) send(ctx context.Context, notification Notification) error {
	_, err := n.circuitBreaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.sink.Send(ctx, notification)
	})
	n.metrics.Notification(string(notification.Kind), err)

	if err != nil {
		return fmt.Errorf("circuit breaker: %w", err)
	}

	return nil
}

// LogSink writes notifications to the application log.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, notification Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(notification.Kind)),
		zap.String("owner_id", notification.OwnerID.String()),
	}
	if notification.Order != nil {
		fields = append(fields,
			zap.String("order_id", notification.Order.ID.String()),
			zap.String("status", notification.Order.Status),
		)
	}
	if notification.Portfolio != nil {
		fields = append(fields,
			zap.String("cash_balance", notification.Portfolio.CashBalance),
			zap.Int("positions", len(notification.Portfolio.Positions)),
		)
	}

	zapLogger.Info(ctx, "notification", fields...)

	return nil
}
