package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

type Settlement struct {
	OrderID     uuid.UUID `db:"order_id"`
	PortfolioID uuid.UUID `db:"portfolio_id"`
	OwnerID     uuid.UUID `db:"owner_id"`
	Side        int16     `db:"side"`
	Symbol      string    `db:"symbol"`
	Quantity    string    `db:"quantity"`
	Price       string    `db:"price"`
	Amount      string    `db:"amount"`
	AppliedAt   time.Time `db:"applied_at"`
}

func (s Settlement) ToDomain() (models.Settlement, error) {
	values := make([]decimal.Decimal, 3)
	for i, raw := range []string{s.Quantity, s.Price, s.Amount} {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return models.Settlement{}, fmt.Errorf("settlement %s: %w", s.OrderID, err)
		}
		values[i] = value
	}

	return models.Settlement{
		OrderID:     s.OrderID,
		PortfolioID: s.PortfolioID,
		OwnerID:     s.OwnerID,
		Side:        models.Side(s.Side),
		Symbol:      s.Symbol,
		Quantity:    values[0],
		Price:       values[1],
		Amount:      values[2],
		AppliedAt:   s.AppliedAt.UTC(),
	}, nil
}

func SettlementFromDomain(settlement models.Settlement) Settlement {
	return Settlement{
		OrderID:     settlement.OrderID,
		PortfolioID: settlement.PortfolioID,
		OwnerID:     settlement.OwnerID,
		Side:        int16(settlement.Side),
		Symbol:      settlement.Symbol,
		Quantity:    settlement.Quantity.String(),
		Price:       settlement.Price.String(),
		Amount:      settlement.Amount.String(),
		AppliedAt:   settlement.AppliedAt,
	}
}

type Remediation struct {
	ID        uuid.UUID `db:"id"`
	Kind      int16     `db:"kind"`
	SubjectID uuid.UUID `db:"subject_id"`
	Reason    string    `db:"reason"`
	Attempts  int32     `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}

func (r Remediation) ToDomain() models.Remediation {
	return models.Remediation{
		ID:        r.ID,
		Kind:      models.RemediationKind(r.Kind),
		SubjectID: r.SubjectID,
		Reason:    r.Reason,
		Attempts:  int(r.Attempts),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func RemediationFromDomain(remediation models.Remediation) Remediation {
	return Remediation{
		ID:        remediation.ID,
		Kind:      int16(remediation.Kind),
		SubjectID: remediation.SubjectID,
		Reason:    remediation.Reason,
		Attempts:  int32(remediation.Attempts),
		CreatedAt: remediation.CreatedAt,
	}
}
