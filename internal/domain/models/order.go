package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
)

type Order struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	Symbol        string
	Side          Side
	Type          Type
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ExecutedPrice *decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
}

type Side uint8

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNSPECIFIED"
	}
}

func ParseSide(value string) (Side, error) {
	switch strings.ToUpper(value) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return SideUnspecified, domainErrors.Validation("side", fmt.Sprintf("unknown value %q", value))
	}
}

type Type uint8

const (
	TypeUnspecified Type = iota
	TypeMarket
	TypeLimit
)

func (t Type) String() string {
	switch t {
	case TypeMarket:
		return "MARKET"
	case TypeLimit:
		return "LIMIT"
	default:
		return "UNSPECIFIED"
	}
}

func ParseType(value string) (Type, error) {
	switch strings.ToUpper(value) {
	case "MARKET":
		return TypeMarket, nil
	case "LIMIT":
		return TypeLimit, nil
	default:
		return TypeUnspecified, domainErrors.Validation("type", fmt.Sprintf("unknown value %q", value))
	}
}

type Status uint8

const (
	StatusUnspecified Status = iota
	StatusPending
	StatusFilled
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNSPECIFIED"
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

type PlaceCommand struct {
	OwnerID  uuid.UUID
	Symbol   string
	Side     Side
	Type     Type
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func (c PlaceCommand) Validate() error {
	if c.OwnerID == uuid.Nil {
		return domainErrors.Validation("owner_id", "is required")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return domainErrors.Validation("symbol", "is required")
	}
	if c.Side != SideBuy && c.Side != SideSell {
		return domainErrors.Validation("side", "must be BUY or SELL")
	}
	if c.Type != TypeMarket && c.Type != TypeLimit {
		return domainErrors.Validation("type", "must be MARKET or LIMIT")
	}
	if !c.Price.IsPositive() {
		return domainErrors.Validation("price", "must be positive")
	}
	if !c.Quantity.IsPositive() {
		return domainErrors.Validation("quantity", "must be positive")
	}

	return nil
}

// Notional is price times quantity, the cash moved by the order.
func (c PlaceCommand) Notional() decimal.Decimal {
	return c.Price.Mul(c.Quantity)
}

// NewOrder builds an order from a validated command. MARKET orders have no
// counterparty book and execute immediately at the quoted price.
func NewOrder(command PlaceCommand, now time.Time) (Order, error) {
	if err := command.Validate(); err != nil {
		return Order{}, err
	}

	order := Order{
		ID:        uuid.New(),
		OwnerID:   command.OwnerID,
		Symbol:    NormalizeSymbol(command.Symbol),
		Side:      command.Side,
		Type:      command.Type,
		Price:     command.Price,
		Quantity:  command.Quantity,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if order.Type == TypeMarket {
		executed := command.Price
		order.ExecutedPrice = &executed
		order.Status = StatusFilled
	}

	return order, nil
}

func (o *Order) Cancel(ownerID uuid.UUID, now time.Time) error {
	if o.OwnerID != ownerID {
		return domainErrors.ErrUnauthorized
	}
	if o.Status != StatusPending {
		return fmt.Errorf("%w: cannot cancel order in status %s", domainErrors.ErrStateConflict, o.Status)
	}

	o.Status = StatusCancelled
	o.UpdatedAt = now

	return nil
}

// Fill executes a resting order at its limit price.
func (o *Order) Fill(now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: cannot fill order in status %s", domainErrors.ErrStateConflict, o.Status)
	}

	executed := o.Price
	o.ExecutedPrice = &executed
	o.Status = StatusFilled
	o.UpdatedAt = now

	return nil
}

func (o *Order) Fail(now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: cannot fail order in status %s", domainErrors.ErrStateConflict, o.Status)
	}

	o.Status = StatusFailed
	o.UpdatedAt = now

	return nil
}

// Matches reports whether a PENDING LIMIT order is eligible at the reference price.
func (o Order) Matches(symbol string, reference decimal.Decimal) bool {
	if o.Status != StatusPending || o.Type != TypeLimit || o.Symbol != symbol {
		return false
	}

	switch o.Side {
	case SideBuy:
		return reference.LessThanOrEqual(o.Price)
	case SideSell:
		return reference.GreaterThanOrEqual(o.Price)
	default:
		return false
	}
}

// Leg returns the portfolio effect of settling o at its executed price.
func (o Order) Leg() (Leg, error) {
	if o.ExecutedPrice == nil {
		return nil, fmt.Errorf("%w: order %s has no executed price", domainErrors.ErrStateConflict, o.ID)
	}

	price := *o.ExecutedPrice
	amount := price.Mul(o.Quantity)

	switch o.Side {
	case SideBuy:
		return BuyLeg{Symbol: o.Symbol, Quantity: o.Quantity, Price: price, TotalCost: amount}, nil
	case SideSell:
		return SellLeg{Symbol: o.Symbol, Quantity: o.Quantity, Price: price, TotalProceeds: amount}, nil
	default:
		return nil, domainErrors.Validation("side", "must be BUY or SELL")
	}
}
