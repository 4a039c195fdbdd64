package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/postgres/dto"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

const portfolioColumns = `id, owner_id, initial_balance::text AS initial_balance, cash_balance::text AS cash_balance,
	version, created_at, updated_at`

type PortfolioStore struct {
	pool *pgxpool.Pool
}

func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{
		pool: pool,
	}
}

func (p *PortfolioStore) Create(ctx context.Context, portfolio models.Portfolio) error {
	const op = "infrastructure.PortfolioStore.Create"

	portfolioDTO := dto.PortfolioFromDomain(portfolio)

	_, err := conn(ctx, p.pool).Exec(ctx,
		`INSERT INTO portfolios (id, owner_id, initial_balance, cash_balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		portfolioDTO.ID,
		portfolioDTO.OwnerID,
		portfolioDTO.InitialBalance,
		portfolioDTO.CashBalance,
		portfolioDTO.Version,
		portfolioDTO.CreatedAt,
		portfolioDTO.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrPortfolioAlreadyExists)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (p *PortfolioStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error) {
	const op = "infrastructure.PortfolioStore.GetByOwner"

	var portfolio models.Portfolio
	err := within(ctx, op, p.pool, readOnly, func(ctx context.Context) error {
		var err error
		portfolio, err = p.load(ctx, conn(ctx, p.pool), ownerID, "")
		return err
	})
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	return portfolio, nil
}

// LockByOwner takes the row lock with SELECT ... FOR UPDATE; it is released by
// commit or rollback of the surrounding transaction.
func (p *PortfolioStore) LockByOwner(ctx context.Context, ownerID uuid.UUID) (models.Portfolio, error) {
	const op = "infrastructure.PortfolioStore.LockByOwner"

	tx, found := txFromContext(ctx)
	if !found {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrNoTransaction)
	}

	portfolio, err := p.load(ctx, tx, ownerID, " FOR UPDATE")
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return portfolio, nil
}

// Save rewrites the portfolio row and its positions. Zero positions are not written.
func (p *PortfolioStore) Save(ctx context.Context, portfolio models.Portfolio) (int64, error) {
	const op = "infrastructure.PortfolioStore.Save"

	tx, found := txFromContext(ctx)
	if !found {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrNoTransaction)
	}

	portfolioDTO := dto.PortfolioFromDomain(portfolio)

	var version int64
	err := tx.QueryRow(ctx,
		`UPDATE portfolios
		 SET cash_balance = $2, updated_at = $3, version = version + 1
		 WHERE id = $1 AND version = $4
		 RETURNING version`,
		portfolioDTO.ID,
		portfolioDTO.CashBalance,
		portfolioDTO.UpdatedAt,
		portfolioDTO.Version,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrVersionConflict)
		}

		return 0, fmt.Errorf("%s: update: %w", op, mapError(err))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE portfolio_id = $1`, portfolio.ID); err != nil {
		return 0, fmt.Errorf("%s: delete positions: %w", op, err)
	}

	batch := &pgx.Batch{}
	for _, position := range portfolio.Positions {
		if position.Quantity.IsZero() {
			continue
		}
		batch.Queue(
			`INSERT INTO positions (portfolio_id, symbol, quantity, average_cost) VALUES ($1, $2, $3, $4)`,
			portfolio.ID, position.Symbol, position.Quantity.String(), position.AverageCost.String(),
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("%s: insert positions: %w", op, err)
		}
	}

	return version, nil
}

func (p *PortfolioStore) load(ctx context.Context, q querier, ownerID uuid.UUID, lockClause string) (models.Portfolio, error) {
	rows, err := q.Query(ctx,
		`SELECT `+portfolioColumns+`
		 FROM portfolios
		 WHERE owner_id = $1`+lockClause,
		ownerID,
	)
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("query: %w", err)
	}

	portfolioDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Portfolio])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Portfolio{}, repositoryErrors.ErrPortfolioNotFound
		}

		return models.Portfolio{}, fmt.Errorf("collect: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT symbol, quantity::text AS quantity, average_cost::text AS average_cost
		 FROM positions
		 WHERE portfolio_id = $1
		 ORDER BY symbol`,
		portfolioDTO.ID,
	)
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("query positions: %w", err)
	}

	positionDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Position])
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("collect positions: %w", err)
	}

	return portfolioDTO.ToDomain(positionDTOs)
}
