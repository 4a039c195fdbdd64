package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/postgres/dto"
)

type RemediationStore struct {
	pool *pgxpool.Pool
}

func NewRemediationStore(pool *pgxpool.Pool) *RemediationStore {
	return &RemediationStore{
		pool: pool,
	}
}

func (r *RemediationStore) Enqueue(ctx context.Context, remediation models.Remediation) error {
	const op = "infrastructure.RemediationStore.Enqueue"

	if remediation.ID == uuid.Nil {
		remediation.ID = uuid.New()
	}
	if remediation.CreatedAt.IsZero() {
		remediation.CreatedAt = time.Now().UTC()
	}

	remediationDTO := dto.RemediationFromDomain(remediation)

	if _, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO remediations (id, kind, subject_id, reason, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		remediationDTO.ID,
		remediationDTO.Kind,
		remediationDTO.SubjectID,
		remediationDTO.Reason,
		remediationDTO.Attempts,
		remediationDTO.CreatedAt,
	); err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (r *RemediationStore) List(ctx context.Context, kind models.RemediationKind, limit int) ([]models.Remediation, error) {
	const op = "infrastructure.RemediationStore.List"

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, kind, subject_id, reason, attempts, created_at
		 FROM remediations
		 WHERE $1::smallint = 0 OR kind = $1::smallint
		 ORDER BY created_at, id
		 LIMIT $2`,
		int16(kind),
		limitOrAll(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	remediationDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Remediation])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	remediations := make([]models.Remediation, 0, len(remediationDTOs))
	for _, remediationDTO := range remediationDTOs {
		remediations = append(remediations, remediationDTO.ToDomain())
	}

	return remediations, nil
}
