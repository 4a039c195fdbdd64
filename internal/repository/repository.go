package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

// Transactor runs fn in one transaction carried by the context passed to fn.
// Repository calls made with that context join the transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadTransactor runs fn against one consistent snapshot. Calls made inside
// any transaction join it. fn must not write.
type ReadTransactor interface {
	WithinReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderRepository interface {
	Create(ctx context.Context, order models.Order) error
	Get(ctx context.Context, id uuid.UUID) (models.Order, error)
	// Update stores order if its Version still matches the stored one and
	// returns the incremented version, otherwise ErrVersionConflict.
	Update(ctx context.Context, order models.Order) (int64, error)
	FindMatchable(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Order, error)
	// ListFilledUnsettled pages FILLED orders without a settlement in
	// (UpdatedAt, ID) order, starting strictly after the cursor. A zero
	// cursor starts from the beginning.
	ListFilledUnsettled(ctx context.Context, after OrderCursor, limit int) ([]models.Order, error)
}

// OrderCursor is a position in (UpdatedAt, ID) order.
type OrderCursor struct {
	UpdatedAt time.Time
	ID        uuid.UUID
}

func CursorOf(order models.Order) OrderCursor {
	return OrderCursor{UpdatedAt: order.UpdatedAt, ID: order.ID}
}

func (c OrderCursor) IsZero() bool {
	return c.UpdatedAt.IsZero() && c.ID == uuid.Nil
}

// Before reports whether the cursor sorts strictly before order.
func (c OrderCursor) Before(order models.Order) bool {
	if cmp := c.UpdatedAt.Compare(order.UpdatedAt); cmp != 0 {
		return cmp < 0
	}
	return c.ID.String() < order.ID.String()
}

type PortfolioRepository interface {
	Create(ctx context.Context, portfolio models.Portfolio) error
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error)
	// LockByOwner reads the portfolio under an exclusive lock held until the
	// surrounding transaction ends. It fails with ErrNoTransaction outside one.
	LockByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error)
	Save(ctx context.Context, portfolio models.Portfolio) (int64, error)
}

type SettlementJournal interface {
	RecordSettlement(ctx context.Context, settlement models.Settlement) error
	HasSettlement(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListSettlements(ctx context.Context, ownerID uuid.UUID) ([]models.Settlement, error)
}

type RemediationQueue interface {
	Enqueue(ctx context.Context, remediation models.Remediation) error
	List(ctx context.Context, kind models.RemediationKind, limit int) ([]models.Remediation, error)
}

type PriceCache interface {
	SetPrice(ctx context.Context, tick models.PriceTick, ttl time.Duration) error
	GetPrice(ctx context.Context, symbol string) (models.PriceTick, error)
}

// Store is everything the settlement engine needs from one authoritative store.
type Store interface {
	Transactor
	ReadTransactor
	Orders() OrderRepository
	Portfolios() PortfolioRepository
	Settlements() SettlementJournal
	Remediations() RemediationQueue
	Ping(ctx context.Context) error
}
