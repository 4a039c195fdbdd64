package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
)

// AverageCostScale is the number of fractional digits kept in Position.AverageCost.
// Rounding is half away from zero, which is half-up for the non-negative costs stored here.
const AverageCostScale int32 = 8

type Portfolio struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	InitialBalance decimal.Decimal
	CashBalance    decimal.Decimal
	Positions      map[string]Position
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Position struct {
	Symbol      string
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
}

func NewPortfolio(ownerID uuid.UUID, initialBalance decimal.Decimal, now time.Time) (Portfolio, error) {
	if ownerID == uuid.Nil {
		return Portfolio{}, domainErrors.Validation("owner_id", "is required")
	}
	if initialBalance.IsNegative() {
		return Portfolio{}, domainErrors.Validation("initial_balance", "must not be negative")
	}

	return Portfolio{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		InitialBalance: initialBalance,
		CashBalance:    initialBalance,
		Positions:      make(map[string]Position),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Clone returns a copy that shares no map with p.
func (p Portfolio) Clone() Portfolio {
	clone := p
	clone.Positions = make(map[string]Position, len(p.Positions))
	for symbol, position := range p.Positions {
		clone.Positions[symbol] = position
	}

	return clone
}

func (p Portfolio) Position(symbol string) (Position, bool) {
	position, found := p.Positions[symbol]
	return position, found
}

func (p *Portfolio) ProcessBuy(symbol string, quantity, price, totalCost decimal.Decimal) error {
	if !quantity.IsPositive() {
		return domainErrors.Validation("quantity", "must be positive")
	}
	if p.CashBalance.LessThan(totalCost) {
		return fmt.Errorf("%w: balance %s, required %s", domainErrors.ErrInsufficientFunds, p.CashBalance, totalCost)
	}

	if p.Positions == nil {
		p.Positions = make(map[string]Position)
	}

	position, found := p.Positions[symbol]
	if !found {
		position = Position{Symbol: symbol, Quantity: decimal.Zero, AverageCost: decimal.Zero}
	}

	newQuantity := position.Quantity.Add(quantity)
	weighted := position.Quantity.Mul(position.AverageCost).Add(quantity.Mul(price))

	position.AverageCost = weighted.DivRound(newQuantity, AverageCostScale)
	position.Quantity = newQuantity

	p.Positions[symbol] = position
	p.CashBalance = p.CashBalance.Sub(totalCost)

	return nil
}

func (p *Portfolio) ProcessSell(symbol string, quantity, price, totalProceeds decimal.Decimal) error {
	if !quantity.IsPositive() {
		return domainErrors.Validation("quantity", "must be positive")
	}

	position, found := p.Positions[symbol]
	if !found {
		return fmt.Errorf("%w: no position in %s", domainErrors.ErrInsufficientAsset, symbol)
	}
	if position.Quantity.LessThan(quantity) {
		return fmt.Errorf("%w: holding %s %s, required %s",
			domainErrors.ErrInsufficientAsset, position.Quantity, symbol, quantity)
	}

	position.Quantity = position.Quantity.Sub(quantity)
	if position.Quantity.IsZero() {
		delete(p.Positions, symbol)
	} else {
		p.Positions[symbol] = position
	}

	p.CashBalance = p.CashBalance.Add(totalProceeds)

	return nil
}

// CanBuy and CanSell check a placement against a snapshot without mutating it.
func (p Portfolio) CanBuy(totalCost decimal.Decimal) error {
	if p.CashBalance.LessThan(totalCost) {
		return fmt.Errorf("%w: balance %s, required %s", domainErrors.ErrInsufficientFunds, p.CashBalance, totalCost)
	}
	return nil
}

func (p Portfolio) CanSell(symbol string, quantity decimal.Decimal) error {
	position, found := p.Positions[symbol]
	if !found || position.Quantity.LessThan(quantity) {
		return fmt.Errorf("%w: %s", domainErrors.ErrInsufficientAsset, symbol)
	}
	return nil
}

// CheckInvariants verifies a state that is about to be committed.
func (p Portfolio) CheckInvariants() error {
	if p.CashBalance.IsNegative() {
		return fmt.Errorf("portfolio %s: negative cash balance %s", p.ID, p.CashBalance)
	}

	for symbol, position := range p.Positions {
		if symbol != position.Symbol {
			return fmt.Errorf("portfolio %s: position key %s holds %s", p.ID, symbol, position.Symbol)
		}
		if !position.Quantity.IsPositive() {
			return fmt.Errorf("portfolio %s: position %s has quantity %s", p.ID, symbol, position.Quantity)
		}
	}

	return nil
}

// ReplaySettlements rebuilds balance and positions from the initial balance and
// the journal, in the order the settlements were applied.
func ReplaySettlements(ownerID uuid.UUID, initialBalance decimal.Decimal, history []Settlement) (Portfolio, error) {
	portfolio := Portfolio{
		OwnerID:        ownerID,
		InitialBalance: initialBalance,
		CashBalance:    initialBalance,
		Positions:      make(map[string]Position),
	}

	for _, settlement := range history {
		var err error
		if settlement.Side == SideSell {
			err = portfolio.ProcessSell(settlement.Symbol, settlement.Quantity, settlement.Price, settlement.Amount)
		} else {
			err = portfolio.ProcessBuy(settlement.Symbol, settlement.Quantity, settlement.Price, settlement.Amount)
		}
		if err != nil {
			return Portfolio{}, fmt.Errorf("replay order %s: %w", settlement.OrderID, err)
		}
	}

	return portfolio, nil
}
