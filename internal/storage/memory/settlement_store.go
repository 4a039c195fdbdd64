package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

type SettlementStore struct {
	store *Store
}

func (j *SettlementStore) RecordSettlement(ctx context.Context, settlement models.Settlement) error {
	const op = "storage.SettlementStore.RecordSettlement"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	s := j.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.applied(ctx, settlement.OrderID) {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrSettlementAlreadyApplied)
	}

	if tx := txFromContext(ctx); tx != nil {
		tx.settlements = append(tx.settlements, settlement)
		return nil
	}

	s.settlements[settlement.OrderID] = settlement
	s.history[settlement.OwnerID] = append(s.history[settlement.OwnerID], settlement.OrderID)

	return nil
}

func (j *SettlementStore) HasSettlement(ctx context.Context, orderID uuid.UUID) (bool, error) {
	const op = "storage.SettlementStore.HasSettlement"

	if err := checkContext(ctx, op); err != nil {
		return false, err
	}

	s := j.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return j.applied(ctx, orderID), nil
}

// ListSettlements returns the owner's committed journal in application order.
func (j *SettlementStore) ListSettlements(ctx context.Context, ownerID uuid.UUID) ([]models.Settlement, error) {
	const op = "storage.SettlementStore.ListSettlements"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	s := j.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.history[ownerID]
	result := make([]models.Settlement, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.settlements[id])
	}

	return result, nil
}

func (j *SettlementStore) applied(ctx context.Context, orderID uuid.UUID) bool {
	if _, found := j.store.settlements[orderID]; found {
		return true
	}

	if tx := txFromContext(ctx); tx != nil {
		for _, staged := range tx.settlements {
			if staged.OrderID == orderID {
				return true
			}
		}
	}

	return false
}
