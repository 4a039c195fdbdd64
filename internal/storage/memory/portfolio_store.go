package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

type PortfolioStore struct {
	store *Store
}

func (p *PortfolioStore) Create(ctx context.Context, portfolio models.Portfolio) error {
	const op = "storage.PortfolioStore.Create"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := p.visible(ctx, portfolio.OwnerID); found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrPortfolioAlreadyExists)
	}

	if tx := txFromContext(ctx); tx != nil {
		tx.portfolios[portfolio.OwnerID] = portfolioWrite{portfolio: portfolio.Clone(), create: true}
		return nil
	}

	s.portfolios[portfolio.OwnerID] = portfolio.Clone()
	return nil
}

func (p *PortfolioStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error) {
	const op = "storage.PortfolioStore.GetByOwner"

	if err := checkContext(ctx, op); err != nil {
		return models.Portfolio{}, err
	}

	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	portfolio, found := p.visible(ctx, ownerID)
	if !found {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPortfolioNotFound)
	}

	return portfolio.Clone(), nil
}

func (p *PortfolioStore) LockByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error) {
	const op = "storage.PortfolioStore.LockByOwner"

	tx := txFromContext(ctx)
	if tx == nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrNoTransaction)
	}

	if err := p.store.acquire(ctx, tx, ownerID); err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	return p.GetByOwner(ctx, ownerID)
}

func (p *PortfolioStore) Save(ctx context.Context, portfolio models.Portfolio) (int64, error) {
	const op = "storage.PortfolioStore.Save"

	if err := checkContext(ctx, op); err != nil {
		return 0, err
	}

	tx := txFromContext(ctx)
	if tx == nil {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrNoTransaction)
	}
	if _, held := tx.locked[portfolio.OwnerID]; !held {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPortfolioNotLocked)
	}

	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := p.visible(ctx, portfolio.OwnerID)
	if !found {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPortfolioNotFound)
	}
	if current.Version != portfolio.Version {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrVersionConflict)
	}

	saved := portfolio.Clone()
	for symbol, position := range saved.Positions {
		if position.Quantity.IsZero() {
			delete(saved.Positions, symbol)
		}
	}
	saved.Version++

	write, staged := tx.portfolios[portfolio.OwnerID]
	if !staged {
		write = portfolioWrite{baseVersion: current.Version}
	}
	write.portfolio = saved
	tx.portfolios[portfolio.OwnerID] = write

	return saved.Version, nil
}

// visible returns the portfolio as the caller's transaction sees it. Caller holds s.mu.
func (p *PortfolioStore) visible(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, bool) {
	if tx := txFromContext(ctx); tx != nil {
		if write, staged := tx.portfolios[ownerID]; staged {
			return write.portfolio, true
		}
	}

	portfolio, found := p.store.portfolios[ownerID]
	return portfolio, found
}
