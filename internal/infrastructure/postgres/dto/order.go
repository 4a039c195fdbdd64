package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

// Numeric columns are selected as ::text and parsed here.
type Order struct {
	ID            uuid.UUID `db:"id"`
	OwnerID       uuid.UUID `db:"owner_id"`
	Symbol        string    `db:"symbol"`
	Side          int16     `db:"side"`
	Type          int16     `db:"type"`
	Price         string    `db:"price"`
	Quantity      string    `db:"quantity"`
	ExecutedPrice *string   `db:"executed_price"`
	Status        int16     `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	Version       int64     `db:"version"`
}

func (o Order) ToDomain() (models.Order, error) {
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s price: %w", o.ID, err)
	}

	quantity, err := decimal.NewFromString(o.Quantity)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s quantity: %w", o.ID, err)
	}

	var executed *decimal.Decimal
	if o.ExecutedPrice != nil {
		value, err := decimal.NewFromString(*o.ExecutedPrice)
		if err != nil {
			return models.Order{}, fmt.Errorf("order %s executed price: %w", o.ID, err)
		}
		executed = &value
	}

	return models.Order{
		ID:            o.ID,
		OwnerID:       o.OwnerID,
		Symbol:        o.Symbol,
		Side:          models.Side(o.Side),
		Type:          models.Type(o.Type),
		Price:         price,
		Quantity:      quantity,
		ExecutedPrice: executed,
		Status:        models.Status(o.Status),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
		Version:       o.Version,
	}, nil
}

func OrderFromDomain(order models.Order) Order {
	var executed *string
	if order.ExecutedPrice != nil {
		value := order.ExecutedPrice.String()
		executed = &value
	}

	return Order{
		ID:            order.ID,
		OwnerID:       order.OwnerID,
		Symbol:        order.Symbol,
		Side:          int16(order.Side),
		Type:          int16(order.Type),
		Price:         order.Price.String(),
		Quantity:      order.Quantity.String(),
		ExecutedPrice: executed,
		Status:        int16(order.Status),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		Version:       order.Version,
	}
}
