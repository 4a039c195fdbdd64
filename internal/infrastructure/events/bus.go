package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/workers"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

var ErrNoHandler = errors.New("no order executed handler subscribed")

type Handler interface {
	Handle(ctx context.Context, event models.OrderExecuted)
}

type Submitter interface {
	Submit(task workers.Task) error
}

// Bus delivers OrderExecuted to its handler on the worker pool. Publishing
// never waits for the handler.
type Bus struct {
	submitter Submitter

	mu      sync.RWMutex
	handler Handler
}

func NewBus(submitter Submitter) *Bus {
	return &Bus{
		submitter: submitter,
	}
}

// Subscribe sets the handler. The handler usually depends on a publisher, so
// it is attached after both exist.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handler = handler
}

func (b *Bus) PublishOrderExecuted(ctx context.Context, event models.OrderExecuted) error {
	const op = "Bus.PublishOrderExecuted"

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("%s: %w", op, ErrNoHandler)
	}

	traceID := zapLogger.TraceIDFromContext(ctx)
	spanContext := trace.SpanContextFromContext(ctx)

	task := workers.Task{
		Name: "order-executed",
		Run: func(taskCtx context.Context) error {
			if traceID != "" {
				taskCtx = zapLogger.ContextWithTraceID(taskCtx, traceID)
			}
			if spanContext.IsValid() {
				taskCtx = trace.ContextWithRemoteSpanContext(taskCtx, spanContext)
			}

			handler.Handle(taskCtx, event)
			return nil
		},
	}

	if err := b.submitter.Submit(task); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
