package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	"github.com/nastyazhadan/trading-hub/shared/infra/redis"
)

const lastPricePrefix = "price:last:"

type cachedTick struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PriceCache keeps the last reference price per symbol in Redis.
type PriceCache struct {
	client redis.Client
}

func NewPriceCache(client redis.Client) *PriceCache {
	return &PriceCache{
		client: client,
	}
}

func (c *PriceCache) SetPrice(ctx context.Context, tick models.PriceTick, ttl time.Duration) error {
	const op = "redis.PriceCache.SetPrice"

	payload, err := json.Marshal(cachedTick{Price: tick.Price, ObservedAt: tick.ObservedAt})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.client.SetWithTTL(ctx, lastPricePrefix+tick.Symbol, payload, ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *PriceCache) GetPrice(ctx context.Context, symbol string) (models.PriceTick, error) {
	const op = "redis.PriceCache.GetPrice"

	payload, err := c.client.Get(ctx, lastPricePrefix+symbol)
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return models.PriceTick{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPriceNotFound)
		}
		return models.PriceTick{}, fmt.Errorf("%s: %w", op, err)
	}

	var cached cachedTick
	if err := json.Unmarshal(payload, &cached); err != nil {
		return models.PriceTick{}, fmt.Errorf("%s: decode: %w", op, err)
	}

	return models.PriceTick{
		Symbol:     symbol,
		Price:      cached.Price,
		ObservedAt: cached.ObservedAt,
	}, nil
}
