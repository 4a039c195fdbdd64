package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
)

// OrderExecuted is published after an order reaches FILLED and its transaction commits.
type OrderExecuted struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

func NewOrderExecuted(order Order) OrderExecuted {
	event := OrderExecuted{
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Symbol:     order.Symbol,
		Side:       order.Side.String(),
		Quantity:   order.Quantity,
		ExecutedAt: order.UpdatedAt,
	}
	if order.ExecutedPrice != nil {
		event.ExecutedPrice = *order.ExecutedPrice
	}

	return event
}

// PriceTick is one reference price observation from the external feed.
type PriceTick struct {
	Symbol     string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Validate expects Symbol to be normalized already.
func (t PriceTick) Validate() error {
	if t.Symbol == "" {
		return domainErrors.Validation("symbol", "is required")
	}
	if !t.Price.IsPositive() {
		return domainErrors.Validation("price", "must be positive")
	}

	return nil
}
