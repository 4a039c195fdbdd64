package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/metrics"
	"github.com/nastyazhadan/trading-hub/internal/workers"
	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	serviceErrors "github.com/nastyazhadan/trading-hub/shared/errors/service"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type Submitter interface {
	Submit(task workers.Task) error
}

type Creator interface {
	Create(ctx context.Context, portfolio models.Portfolio) error
}

type RemediationQueue interface {
	Enqueue(ctx context.Context, remediation models.Remediation) error
}

type ProvisionerConfig struct {
	InitialBalance decimal.Decimal
	Attempts       uint64
	Delay          time.Duration
}

// Provisioner creates the portfolio of a newly registered account outside the
// registration request.
type Provisioner struct {
	portfolios   Creator
	remediations RemediationQueue
	submitter    Submitter
	metrics      *metrics.Metrics
	config       ProvisionerConfig
	now          func() time.Time
}

func NewProvisioner(
	portfolios Creator,
	remediations RemediationQueue,
	submitter Submitter,
	metrics *metrics.Metrics,
	config ProvisionerConfig,
) *Provisioner {
	if config.Attempts == 0 {
		config.Attempts = 1
	}

	return &Provisioner{
		portfolios:   portfolios,
		remediations: remediations,
		submitter:    submitter,
		metrics:      metrics,
		config:       config,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AccountCreated schedules provisioning and returns without waiting for it.
func (p *Provisioner) AccountCreated(ctx context.Context, ownerID uuid.UUID) error {
	const op = "Provisioner.AccountCreated"

	if ownerID == uuid.Nil {
		return fmt.Errorf("%s: %w", op, domainErrors.Validation("owner_id", "is required"))
	}

	traceID := zapLogger.TraceIDFromContext(ctx)
	task := workers.Task{
		Name: "provision-portfolio",
		Run: func(taskCtx context.Context) error {
			if traceID != "" {
				taskCtx = zapLogger.ContextWithTraceID(taskCtx, traceID)
			}
			return p.Provision(taskCtx, ownerID)
		},
	}

	if err := p.submitter.Submit(task); err != nil {
		zapLogger.Error(ctx, "failed to schedule portfolio provisioning",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
		p.remediate(ctx, ownerID, 0, err)
		return fmt.Errorf("%s: %w: %w", op, serviceErrors.ErrProvisioningFailed, err)
	}

	return nil
}

// Provision creates the portfolio with a bounded number of attempts at a
// constant delay. An existing portfolio counts as success.
func (p *Provisioner) Provision(ctx context.Context, ownerID uuid.UUID) error {
	const op = "Provisioner.Provision"

	var attempts uint64
	operation := func() error {
		attempts++

		portfolio, err := models.NewPortfolio(ownerID, p.config.InitialBalance, p.now())
		if err != nil {
			return backoff.Permanent(err)
		}

		err = p.portfolios.Create(ctx, portfolio)
		if err == nil || errors.Is(err, repositoryErrors.ErrPortfolioAlreadyExists) {
			return nil
		}

		p.metrics.ProvisioningAttempt("retry")
		zapLogger.Warn(ctx, "portfolio provisioning attempt failed",
			zap.String("owner_id", ownerID.String()),
			zap.Uint64("attempt", attempts),
			zap.Error(err),
		)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.config.Delay), p.config.Attempts-1),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		p.metrics.ProvisioningAttempt("exhausted")
		zapLogger.Error(ctx, "portfolio provisioning gave up",
			zap.String("owner_id", ownerID.String()),
			zap.Uint64("attempts", attempts),
			zap.Error(err),
		)
		p.remediate(ctx, ownerID, attempts, err)
		return fmt.Errorf("%s: %w: %w", op, serviceErrors.ErrProvisioningFailed, err)
	}

	p.metrics.ProvisioningAttempt("provisioned")
	zapLogger.Info(ctx, "portfolio provisioned",
		zap.String("owner_id", ownerID.String()),
		zap.Uint64("attempts", attempts),
	)

	return nil
}

func (p *Provisioner) remediate(ctx context.Context, ownerID uuid.UUID, attempts uint64, cause error) {
	remediation := models.Remediation{
		ID:        uuid.New(),
		Kind:      models.RemediationKindProvisioning,
		SubjectID: ownerID,
		Reason:    cause.Error(),
		Attempts:  int(attempts),
		CreatedAt: p.now(),
	}

	if err := p.remediations.Enqueue(context.WithoutCancel(ctx), remediation); err != nil {
		zapLogger.Error(ctx, "failed to enqueue provisioning remediation",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
		return
	}

	p.metrics.RemediationEnqueued(remediation.Kind.String())
}
