package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

type OrderStore struct {
	store *Store
}

func (o *OrderStore) Create(ctx context.Context, order models.Order) error {
	const op = "storage.OrderStore.Create"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.orders[order.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderAlreadyExists)
	}

	if tx := txFromContext(ctx); tx != nil {
		if _, found := tx.orders[order.ID]; found {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderAlreadyExists)
		}
		tx.orders[order.ID] = orderWrite{order: order, create: true}
		return nil
	}

	s.orders[order.ID] = order
	return nil
}

func (o *OrderStore) Get(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "storage.OrderStore.Get"

	if err := checkContext(ctx, op); err != nil {
		return models.Order{}, err
	}

	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	order, found := o.visible(ctx, id)
	if !found {
		return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}

	return order, nil
}

func (o *OrderStore) Update(ctx context.Context, order models.Order) (int64, error) {
	const op = "storage.OrderStore.Update"

	if err := checkContext(ctx, op); err != nil {
		return 0, err
	}

	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := o.visible(ctx, order.ID)
	if !found {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}
	if current.Version != order.Version {
		return 0, fmt.Errorf("%s: %w", op, repositoryErrors.ErrVersionConflict)
	}

	order.Version++

	tx := txFromContext(ctx)
	if tx == nil {
		s.orders[order.ID] = order
		return order.Version, nil
	}

	write, staged := tx.orders[order.ID]
	if !staged {
		write = orderWrite{baseVersion: current.Version}
	}
	write.order = order
	tx.orders[order.ID] = write

	return order.Version, nil
}

func (o *OrderStore) FindMatchable(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error) {
	const op = "storage.OrderStore.FindMatchable"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Order
	for _, order := range o.snapshot(ctx) {
		if order.Matches(symbol, price) {
			result = append(result, order)
		}
	}

	return result, nil
}

func (o *OrderStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Order, error) {
	const op = "storage.OrderStore.ListByOwner"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Order
	for _, order := range o.snapshot(ctx) {
		if order.OwnerID == ownerID {
			result = append(result, order)
		}
	}

	slices.SortFunc(result, func(a, b models.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	return truncate(result, limit), nil
}

func (o *OrderStore) ListFilledUnsettled(
	ctx context.Context,
	after repository.OrderCursor,
	limit int,
) ([]models.Order, error) {
	const op = "storage.OrderStore.ListFilledUnsettled"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Order
	for id, order := range s.orders {
		if order.Status != models.StatusFilled {
			continue
		}
		if _, settled := s.settlements[id]; settled {
			continue
		}
		if !after.IsZero() && !after.Before(order) {
			continue
		}
		result = append(result, order)
	}

	slices.SortFunc(result, func(a, b models.Order) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	return truncate(result, limit), nil
}

// visible returns the order as the caller's transaction sees it. Caller holds s.mu.
func (o *OrderStore) visible(ctx context.Context, id uuid.UUID) (models.Order, bool) {
	if tx := txFromContext(ctx); tx != nil {
		if write, staged := tx.orders[id]; staged {
			return write.order, true
		}
	}

	order, found := o.store.orders[id]
	return order, found
}

// snapshot is committed state overlaid with the caller's staged writes. Caller holds s.mu.
func (o *OrderStore) snapshot(ctx context.Context) map[uuid.UUID]models.Order {
	tx := txFromContext(ctx)
	if tx == nil || len(tx.orders) == 0 {
		return o.store.orders
	}

	merged := make(map[uuid.UUID]models.Order, len(o.store.orders)+len(tx.orders))
	for id, order := range o.store.orders {
		merged[id] = order
	}
	for id, write := range tx.orders {
		merged[id] = write.order
	}

	return merged
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
