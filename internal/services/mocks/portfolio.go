package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/workers"
)

type MockPortfolioCreator struct {
	mock.Mock
}

func (m *MockPortfolioCreator) Create(ctx context.Context, portfolio models.Portfolio) error {
	args := m.Called(ctx, portfolio)
	return args.Error(0)
}

type MockRemediationQueue struct {
	mock.Mock
}

func (m *MockRemediationQueue) Enqueue(ctx context.Context, remediation models.Remediation) error {
	args := m.Called(ctx, remediation)
	return args.Error(0)
}

func (m *MockRemediationQueue) List(ctx context.Context, kind models.RemediationKind, limit int) ([]models.Remediation, error) {
	args := m.Called(ctx, kind, limit)
	if items, ok := args.Get(0).([]models.Remediation); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(task workers.Task) error {
	args := m.Called(task)
	return args.Error(0)
}
