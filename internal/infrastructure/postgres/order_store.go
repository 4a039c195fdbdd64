package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/postgres/dto"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

const orderColumns = `id, owner_id, symbol, side, type, price::text AS price, quantity::text AS quantity,
	executed_price::text AS executed_price, status, created_at, updated_at, version`

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{
		pool: pool,
	}
}

func (o *OrderStore) Create(ctx context.Context, order models.Order) error {
	const op = "infrastructure.OrderStore.Create"

	orderDTO := dto.OrderFromDomain(order)

	_, err := conn(ctx, o.pool).Exec(ctx,
		`INSERT INTO orders (id, owner_id, symbol, side, type, price, quantity, executed_price, status, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		orderDTO.ID,
		orderDTO.OwnerID,
		orderDTO.Symbol,
		orderDTO.Side,
		orderDTO.Type,
		orderDTO.Price,
		orderDTO.Quantity,
		orderDTO.ExecutedPrice,
		orderDTO.Status,
		orderDTO.CreatedAt,
		orderDTO.UpdatedAt,
		orderDTO.Version,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderAlreadyExists)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (o *OrderStore) Get(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "infrastructure.OrderStore.Get"

	rows, err := conn(ctx, o.pool).Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: query: %w", op, err)
	}

	orderDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Order])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
		}

		return models.Order{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	order, err := orderDTO.ToDomain()
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	return order, nil
}

func (o *OrderStore) Update(ctx context.Context, order models.Order) (int64, error) {
	const op = "infrastructure.OrderStore.Update"

	orderDTO := dto.OrderFromDomain(order)

	var version int64
	err := conn(ctx, o.pool).QueryRow(ctx,
		`UPDATE orders
		 SET status = $2, executed_price = $3, updated_at = $4, version = version + 1
		 WHERE id = $1 AND version = $5
		 RETURNING version`,
		orderDTO.ID,
		orderDTO.Status,
		orderDTO.ExecutedPrice,
		orderDTO.UpdatedAt,
		orderDTO.Version,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s: exec: %w", op, mapError(err))
	}

	var exists bool
	if err := conn(ctx, o.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("%s: exists: %w", op, err)
	}
	if !exists {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}

	return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrVersionConflict)
}

func (o *OrderStore) FindMatchable(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error) {
	const op = "infrastructure.OrderStore.FindMatchable"

	return o.list(ctx, op,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE symbol = $1 AND status = $2 AND type = $3
		   AND ((side = $4 AND price >= $6::numeric) OR (side = $5 AND price <= $6::numeric))
		 ORDER BY side, CASE WHEN side = $4 THEN -price ELSE price END, created_at, id`,
		symbol,
		int16(models.StatusPending),
		int16(models.TypeLimit),
		int16(models.SideBuy),
		int16(models.SideSell),
		price.String(),
	)
}

func (o *OrderStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Order, error) {
	const op = "infrastructure.OrderStore.ListByOwner"

	return o.list(ctx, op,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		ownerID,
		limitOrAll(limit),
	)
}

func (o *OrderStore) ListFilledUnsettled(
	ctx context.Context,
	after repository.OrderCursor,
	limit int,
) ([]models.Order, error) {
	const op = "infrastructure.OrderStore.ListFilledUnsettled"

	var afterTime *time.Time
	if !after.IsZero() {
		afterTime = &after.UpdatedAt
	}

	return o.list(ctx, op,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.status = $1
		   AND NOT EXISTS (SELECT 1 FROM settlements s WHERE s.order_id = o.id)
		   AND ($2::timestamptz IS NULL OR (o.updated_at, o.id) > ($2::timestamptz, $3::uuid))
		 ORDER BY o.updated_at, o.id
		 LIMIT $4`,
		int16(models.StatusFilled),
		afterTime,
		after.ID,
		limitOrAll(limit),
	)
}

func (o *OrderStore) list(ctx context.Context, op, query string, args ...any) ([]models.Order, error) {
	rows, err := conn(ctx, o.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	orderDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Order])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	orders := make([]models.Order, 0, len(orderDTOs))
	for _, orderDTO := range orderDTOs {
		order, err := orderDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) *int64 {
	if limit <= 0 {
		return nil
	}
	value := int64(limit)
	return &value
}
