package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

type cachedPrice struct {
	tick      models.PriceTick
	expiresAt time.Time
}

type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]cachedPrice
	now    func() time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices: make(map[string]cachedPrice, 64),
		now:    time.Now,
	}
}

// SetPrice stores the last tick per symbol. A zero ttl keeps it until overwritten.
func (c *PriceCache) SetPrice(ctx context.Context, tick models.PriceTick, ttl time.Duration) error {
	const op = "storage.PriceCache.SetPrice"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	entry := cachedPrice{tick: tick}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.prices[tick.Symbol] = entry
	c.mu.Unlock()

	return nil
}

func (c *PriceCache) GetPrice(ctx context.Context, symbol string) (models.PriceTick, error) {
	const op = "storage.PriceCache.GetPrice"

	if err := checkContext(ctx, op); err != nil {
		return models.PriceTick{}, err
	}

	c.mu.RLock()
	entry, found := c.prices[symbol]
	c.mu.RUnlock()

	if !found || (!entry.expiresAt.IsZero() && c.now().After(entry.expiresAt)) {
		return models.PriceTick{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPriceNotFound)
	}

	return entry.tick, nil
}
