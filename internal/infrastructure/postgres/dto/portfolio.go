package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

type Portfolio struct {
	ID             uuid.UUID `db:"id"`
	OwnerID        uuid.UUID `db:"owner_id"`
	InitialBalance string    `db:"initial_balance"`
	CashBalance    string    `db:"cash_balance"`
	Version        int64     `db:"version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type Position struct {
	Symbol      string `db:"symbol"`
	Quantity    string `db:"quantity"`
	AverageCost string `db:"average_cost"`
}

func (p Portfolio) ToDomain(positions []Position) (models.Portfolio, error) {
	initial, err := decimal.NewFromString(p.InitialBalance)
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("portfolio %s initial balance: %w", p.ID, err)
	}

	cash, err := decimal.NewFromString(p.CashBalance)
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("portfolio %s cash balance: %w", p.ID, err)
	}

	portfolio := models.Portfolio{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		InitialBalance: initial,
		CashBalance:    cash,
		Positions:      make(map[string]models.Position, len(positions)),
		Version:        p.Version,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}

	for _, row := range positions {
		position, err := row.ToDomain()
		if err != nil {
			return models.Portfolio{}, fmt.Errorf("portfolio %s: %w", p.ID, err)
		}
		portfolio.Positions[position.Symbol] = position
	}

	return portfolio, nil
}

func (p Position) ToDomain() (models.Position, error) {
	quantity, err := decimal.NewFromString(p.Quantity)
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s quantity: %w", p.Symbol, err)
	}

	averageCost, err := decimal.NewFromString(p.AverageCost)
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s average cost: %w", p.Symbol, err)
	}

	return models.Position{
		Symbol:      p.Symbol,
		Quantity:    quantity,
		AverageCost: averageCost,
	}, nil
}

func PortfolioFromDomain(portfolio models.Portfolio) Portfolio {
	return Portfolio{
		ID:             portfolio.ID,
		OwnerID:        portfolio.OwnerID,
		InitialBalance: portfolio.InitialBalance.String(),
		CashBalance:    portfolio.CashBalance.String(),
		Version:        portfolio.Version,
		CreatedAt:      portfolio.CreatedAt,
		UpdatedAt:      portfolio.UpdatedAt,
	}
}
