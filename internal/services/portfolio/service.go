package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
)

type Reader interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error)
}

type History interface {
	ListSettlements(ctx context.Context, ownerID uuid.UUID) ([]models.Settlement, error)
}

type Snapshotter interface {
	WithinReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	portfolios Reader
	history    History
	snapshots  Snapshotter
}

func NewService(portfolios Reader, history History, snapshots Snapshotter) *Service {
	return &Service{
		portfolios: portfolios,
		history:    history,
		snapshots:  snapshots,
	}
}

func (s *Service) GetPortfolio(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error) {
	const op = "Service.GetPortfolio"

	portfolio, err := s.portfolios.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrPortfolioNotFound) {
			return models.Portfolio{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrPortfolioNotFound)
		}
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	return portfolio, nil
}

// Divergence describes how a stored portfolio differs from its journal replay.
type Divergence struct {
	OwnerID  uuid.UUID
	Stored   models.Portfolio
	Replayed models.Portfolio
}

func (d Divergence) Error() string {
	return fmt.Sprintf("portfolio of %s diverges from its settlement journal: cash %s, replayed %s",
		d.OwnerID, d.Stored.CashBalance, d.Replayed.CashBalance)
}

func (d Divergence) Unwrap() error {
	return serviceErrors.ErrPortfolioDiverged
}

// VerifyPortfolio replays the settlement journal from the initial balance and
// returns a *Divergence when the result differs from the stored portfolio.
// The portfolio and its journal are read from one snapshot.
func (s *Service) VerifyPortfolio(ctx context.Context, ownerID uuid.UUID) error {
	const op = "Service.VerifyPortfolio"

	var (
		stored  models.Portfolio
		history []models.Settlement
	)
	err := s.snapshots.WithinReadTransaction(ctx, func(ctx context.Context) error {
		var err error
		stored, err = s.GetPortfolio(ctx, ownerID)
		if err != nil {
			return err
		}

		history, err = s.history.ListSettlements(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	replayed, err := models.ReplaySettlements(ownerID, stored.InitialBalance, history)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !samePortfolio(stored, replayed) {
		return &Divergence{OwnerID: ownerID, Stored: stored, Replayed: replayed}
	}

	return nil
}

func samePortfolio(a, b models.Portfolio) bool {
	if !a.CashBalance.Equal(b.CashBalance) || len(a.Positions) != len(b.Positions) {
		return false
	}

	for symbol, position := range a.Positions {
		other, found := b.Positions[symbol]
		if !found ||
			!position.Quantity.Equal(other.Quantity) ||
			!position.AverageCost.Equal(other.AverageCost) {
			return false
		}
	}

	return true
}
