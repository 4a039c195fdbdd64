package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/postgres/dto"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

type SettlementStore struct {
	pool *pgxpool.Pool
}

func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{
		pool: pool,
	}
}

func (s *SettlementStore) RecordSettlement(ctx context.Context, settlement models.Settlement) error {
	const op = "infrastructure.SettlementStore.RecordSettlement"

	settlementDTO := dto.SettlementFromDomain(settlement)

	_, err := conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO settlements (order_id, portfolio_id, owner_id, side, symbol, quantity, price, amount, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		settlementDTO.OrderID,
		settlementDTO.PortfolioID,
		settlementDTO.OwnerID,
		settlementDTO.Side,
		settlementDTO.Symbol,
		settlementDTO.Quantity,
		settlementDTO.Price,
		settlementDTO.Amount,
		settlementDTO.AppliedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrSettlementAlreadyApplied)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (s *SettlementStore) HasSettlement(ctx context.Context, orderID uuid.UUID) (bool, error) {
	const op = "infrastructure.SettlementStore.HasSettlement"

	var exists bool
	if err := conn(ctx, s.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM settlements WHERE order_id = $1)`, orderID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (s *SettlementStore) ListSettlements(ctx context.Context, ownerID uuid.UUID) ([]models.Settlement, error) {
	const op = "infrastructure.SettlementStore.ListSettlements"

	rows, err := conn(ctx, s.pool).Query(ctx,
		`SELECT order_id, portfolio_id, owner_id, side, symbol, quantity::text AS quantity,
		        price::text AS price, amount::text AS amount, applied_at
		 FROM settlements
		 WHERE owner_id = $1
		 ORDER BY seq`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	settlementDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Settlement])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	settlements := make([]models.Settlement, 0, len(settlementDTOs))
	for _, settlementDTO := range settlementDTOs {
		settlement, err := settlementDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		settlements = append(settlements, settlement)
	}

	return settlements, nil
}
