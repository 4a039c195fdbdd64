package closer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/shared/interceptors/recovery"
)

type Logger interface {
	Info(ctx context.Context, msg string, fields ...zap.Field)
	Error(ctx context.Context, msg string, fields ...zap.Field)
}

type NoopLogger struct{}

func (logger *NoopLogger) Info(ctx context.Context, message string, fields ...zap.Field)  {}
func (logger *NoopLogger) Error(ctx context.Context, message string, fields ...zap.Field) {}

type resource struct {
	name  string
	close func(context.Context) error
}

// Closer releases resources opened outside the fx graph, last registered first.
type Closer struct {
	mutex     sync.Mutex
	resources []resource
	logger    Logger
}

var globalCloser = New(&NoopLogger{})

func AddNamed(name string, function func(context.Context) error) {
	globalCloser.AddNamed(name, function)
}

func CloseAll(ctx context.Context) error {
	return globalCloser.CloseAll(ctx)
}

func SetLogger(logger Logger) {
	globalCloser.SetLogger(logger)
}

func New(logger Logger) *Closer {
	return &Closer{logger: logger}
}

func (closer *Closer) SetLogger(logger Logger) {
	closer.mutex.Lock()
	defer closer.mutex.Unlock()

	closer.logger = logger
}

func (closer *Closer) AddNamed(name string, function func(context.Context) error) {
	closer.mutex.Lock()
	defer closer.mutex.Unlock()

	closer.resources = append(closer.resources, resource{name: name, close: function})
}

// CloseAll closes everything registered so far and keeps going past failures.
// Resources left when ctx expires are reported in the returned error.
func (closer *Closer) CloseAll(ctx context.Context) error {
	closer.mutex.Lock()
	resources := closer.resources
	closer.resources = nil
	logger := closer.logger
	closer.mutex.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		current := resources[i]

		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s not closed: %w", current.name, err))
			continue
		}

		start := time.Now()
		err := recovery.Run(ctx, current.name, current.close)
		if err != nil {
			logger.Error(ctx, fmt.Sprintf("failed to close %s", current.name),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", current.name, err))
			continue
		}

		logger.Info(ctx, fmt.Sprintf("%s closed", current.name), zap.Duration("took", time.Since(start)))
	}

	return errors.Join(errs...)
}
