package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
	"github.com/nastyazhadan/trading-hub/shared/interceptors/xrequestid"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type Settler interface {
	ExecuteOrdersAtPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error)
}

// Trigger owns the price-driven settlement loop. Ticks are queued on an inbox
// and processed one at a time, so batches for one trigger never overlap.
type Trigger struct {
	settler Settler
	cache   repository.PriceCache
	ttl     time.Duration

	inbox chan models.PriceTick

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewTrigger(settler Settler, cache repository.PriceCache, inboxSize int, ttl time.Duration) *Trigger {
	if inboxSize <= 0 {
		inboxSize = 1
	}

	return &Trigger{
		settler: settler,
		cache:   cache,
		ttl:     ttl,
		inbox:   make(chan models.PriceTick, inboxSize),
	}
}

func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done != nil || t.stopped {
		return
	}

	ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	t.done = make(chan struct{})

	go t.run(ctx)
}

// Stop cancels the loop and waits for the batch in flight, bounded by ctx.
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.stopped = true
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Trigger.Stop: %w", ctx.Err())
	}
}

// OnPriceTick validates and queues a reference price. It blocks while the
// inbox is full until ctx is done.
func (t *Trigger) OnPriceTick(ctx context.Context, tick models.PriceTick) error {
	const op = "Trigger.OnPriceTick"

	tick.Symbol = models.NormalizeSymbol(tick.Symbol)
	if err := tick.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tick.ObservedAt.IsZero() {
		tick.ObservedAt = time.Now().UTC()
	}

	t.mu.Lock()
	stopped, done := t.stopped, t.done
	t.mu.Unlock()
	if stopped || done == nil {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrTriggerStopped)
	}

	select {
	case t.inbox <- tick:
		return nil
	case <-done:
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrTriggerStopped)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// RerunAtLastPrice evaluates symbol again at its cached reference price.
func (t *Trigger) RerunAtLastPrice(ctx context.Context, symbol string) (int, error) {
	const op = "Trigger.RerunAtLastPrice"

	tick, err := t.cache.GetPrice(ctx, models.NormalizeSymbol(symbol))
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrPriceNotFound) {
			return 0, fmt.Errorf("%s: %w", op, serviceErrors.ErrPriceUnavailable)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	settled, err := t.settler.ExecuteOrdersAtPrice(ctx, tick.Symbol, tick.Price)
	if err != nil {
		return settled, fmt.Errorf("%s: %w", op, err)
	}

	return settled, nil
}

func (t *Trigger) run(ctx context.Context) {
	defer close(t.done)

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-t.inbox:
			t.process(xrequestid.Ensure(ctx), tick)
		}
	}
}

func (t *Trigger) process(ctx context.Context, tick models.PriceTick) {
	if err := t.cache.SetPrice(ctx, tick, t.ttl); err != nil {
		zapLogger.Warn(ctx, "failed to cache reference price",
			zap.String("symbol", tick.Symbol),
			zap.Error(err),
		)
	}

	settled, err := t.settler.ExecuteOrdersAtPrice(ctx, tick.Symbol, tick.Price)
	if err != nil {
		zapLogger.Error(ctx, "price tick evaluation failed",
			zap.String("symbol", tick.Symbol),
			zap.String("price", tick.Price.String()),
			zap.Error(err),
		)
		return
	}

	zapLogger.Debug(ctx, "price tick processed",
		zap.String("symbol", tick.Symbol),
		zap.String("price", tick.Price.String()),
		zap.Int("settled", settled),
	)
}
