package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Leg is the portfolio effect of one executed order: a BuyLeg or a SellLeg.
type Leg interface {
	leg()
	Side() Side
	Amount() decimal.Decimal
}

type BuyLeg struct {
	Symbol    string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	TotalCost decimal.Decimal
}

func (BuyLeg) leg()                      {}
func (BuyLeg) Side() Side                { return SideBuy }
func (l BuyLeg) Amount() decimal.Decimal { return l.TotalCost }

type SellLeg struct {
	Symbol        string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TotalProceeds decimal.Decimal
}

func (SellLeg) leg()                      {}
func (SellLeg) Side() Side                { return SideSell }
func (l SellLeg) Amount() decimal.Decimal { return l.TotalProceeds }

// Settlement is the journal row written with every portfolio mutation.
// OrderID is unique, so an order settles at most once.
type Settlement struct {
	OrderID     uuid.UUID
	PortfolioID uuid.UUID
	OwnerID     uuid.UUID
	Side        Side
	Symbol      string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Amount      decimal.Decimal
	AppliedAt   time.Time
}

func NewSettlement(order Order, portfolio Portfolio, leg Leg, now time.Time) Settlement {
	settlement := Settlement{
		OrderID:     order.ID,
		PortfolioID: portfolio.ID,
		OwnerID:     portfolio.OwnerID,
		Side:        leg.Side(),
		Amount:      leg.Amount(),
		AppliedAt:   now,
	}

	switch l := leg.(type) {
	case BuyLeg:
		settlement.Symbol, settlement.Quantity, settlement.Price = l.Symbol, l.Quantity, l.Price
	case SellLeg:
		settlement.Symbol, settlement.Quantity, settlement.Price = l.Symbol, l.Quantity, l.Price
	}

	return settlement
}

func (s Settlement) Leg() Leg {
	if s.Side == SideSell {
		return SellLeg{Symbol: s.Symbol, Quantity: s.Quantity, Price: s.Price, TotalProceeds: s.Amount}
	}
	return BuyLeg{Symbol: s.Symbol, Quantity: s.Quantity, Price: s.Price, TotalCost: s.Amount}
}

type RemediationKind uint8

const (
	RemediationKindUnspecified RemediationKind = iota
	RemediationKindProvisioning
	RemediationKindSettlement
)

func (k RemediationKind) String() string {
	switch k {
	case RemediationKindProvisioning:
		return "PROVISIONING"
	case RemediationKindSettlement:
		return "SETTLEMENT"
	default:
		return "UNSPECIFIED"
	}
}

// Remediation is an operator-facing record of a failure that automation gave up on.
type Remediation struct {
	ID        uuid.UUID
	Kind      RemediationKind
	SubjectID uuid.UUID
	Reason    string
	Attempts  int
	CreatedAt time.Time
}
