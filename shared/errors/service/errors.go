package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	domainErrors "github.com/nastyazhadan/trading-hub/shared/errors/domain"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrRateLimitExceeded  = errors.New("order rate limit exceeded")
	ErrExecutionFailed    = errors.New("order execution failed")
	ErrProvisioningFailed = errors.New("portfolio provisioning failed")
	ErrPriceUnavailable   = errors.New("reference price unavailable")
	ErrPortfolioDiverged  = errors.New("portfolio diverges from its settlement journal")
	ErrTriggerStopped     = errors.New("price trigger is stopped")
	ErrInternal           = errors.New("internal error")
)

// ExecutionError isolates the failure of one candidate during batch settlement.
type ExecutionError struct {
	OrderID uuid.UUID
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: order %s: %v", ErrExecutionFailed, e.OrderID, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecutionFailed, e.Err}
}

// Public maps err to what may cross the service boundary. Known business
// errors pass through; everything else collapses to ErrInternal.
func Public(err error) error {
	if err == nil {
		return nil
	}

	known := []error{
		domainErrors.ErrValidation,
		domainErrors.ErrUnauthorized,
		domainErrors.ErrStateConflict,
		domainErrors.ErrInsufficientFunds,
		domainErrors.ErrInsufficientAsset,
		ErrOrderNotFound,
		ErrPortfolioNotFound,
		ErrRateLimitExceeded,
		ErrPriceUnavailable,
		ErrPortfolioDiverged,
		ErrTriggerStopped,
		ErrProvisioningFailed,
		ErrExecutionFailed,
		context.Canceled,
		context.DeadlineExceeded,
	}
	for _, target := range known {
		if errors.Is(err, target) {
			return err
		}
	}

	return ErrInternal
}
