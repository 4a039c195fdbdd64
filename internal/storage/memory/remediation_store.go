package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

type RemediationStore struct {
	store *Store
}

func (r *RemediationStore) Enqueue(ctx context.Context, remediation models.Remediation) error {
	const op = "storage.RemediationStore.Enqueue"

	if err := checkContext(ctx, op); err != nil {
		return err
	}

	if remediation.ID == uuid.Nil {
		remediation.ID = uuid.New()
	}
	if remediation.CreatedAt.IsZero() {
		remediation.CreatedAt = time.Now().UTC()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx := txFromContext(ctx); tx != nil {
		tx.remediations = append(tx.remediations, remediation)
		return nil
	}

	s.remediations = append(s.remediations, remediation)

	return nil
}

// List returns the oldest entries first; RemediationKindUnspecified matches every kind.
func (r *RemediationStore) List(ctx context.Context, kind models.RemediationKind, limit int) ([]models.Remediation, error) {
	const op = "storage.RemediationStore.List"

	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Remediation
	for _, remediation := range s.remediations {
		if kind == models.RemediationKindUnspecified || remediation.Kind == kind {
			result = append(result, remediation)
		}
	}

	return truncate(result, limit), nil
}
