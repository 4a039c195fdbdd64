package notifier

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

type Kind string

const (
	KindOrderCreated     Kind = "order_created"
	KindOrderUpdated     Kind = "order_updated"
	KindPortfolioUpdated Kind = "portfolio_updated"
)

// Notification is what the outbound sink delivers to the owner's channel.
type Notification struct {
	Kind      Kind           `json:"kind"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Order     *OrderView     `json:"order,omitempty"`
	Portfolio *PortfolioView `json:"portfolio,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
}

type OrderView struct {
	ID            uuid.UUID `json:"id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Type          string    `json:"type"`
	Price         string    `json:"price"`
	Quantity      string    `json:"quantity"`
	ExecutedPrice string    `json:"executed_price,omitempty"`
	Status        string    `json:"status"`
	Version       int64     `json:"version"`
}

type PortfolioView struct {
	CashBalance string         `json:"cash_balance"`
	Positions   []PositionView `json:"positions"`
	Version     int64          `json:"version"`
}

type PositionView struct {
	Symbol      string `json:"symbol"`
	Quantity    string `json:"quantity"`
	AverageCost string `json:"average_cost"`
}

func orderNotification(kind Kind, order models.Order, now time.Time) Notification {
	view := &OrderView{
		ID:       order.ID,
		Symbol:   order.Symbol,
		Side:     order.Side.String(),
		Type:     order.Type.String(),
		Price:    order.Price.String(),
		Quantity: order.Quantity.String(),
		Status:   order.Status.String(),
		Version:  order.Version,
	}
	if order.ExecutedPrice != nil {
		view.ExecutedPrice = order.ExecutedPrice.String()
	}

	return Notification{
		Kind:    kind,
		OwnerID: order.OwnerID,
		Order:   view,
		SentAt:  now,
	}
}

func portfolioNotification(portfolio models.Portfolio, now time.Time) Notification {
	positions := make([]PositionView, 0, len(portfolio.Positions))
	for _, position := range portfolio.Positions {
		positions = append(positions, PositionView{
			Symbol:      position.Symbol,
			Quantity:    position.Quantity.String(),
			AverageCost: position.AverageCost.String(),
		})
	}
	slices.SortFunc(positions, func(a, b PositionView) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})

	return Notification{
		Kind:    KindPortfolioUpdated,
		OwnerID: portfolio.OwnerID,
		Portfolio: &PortfolioView{
			CashBalance: portfolio.CashBalance.String(),
			Positions:   positions,
			Version:     portfolio.Version,
		},
		SentAt: now,
	}
}
