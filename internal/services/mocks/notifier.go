package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyOrderCreated(ctx context.Context, order models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockNotifier) NotifyOrderUpdated(ctx context.Context, order models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockNotifier) NotifyPortfolioUpdated(ctx context.Context, portfolio models.Portfolio) error {
	args := m.Called(ctx, portfolio)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishOrderExecuted(ctx context.Context, event models.OrderExecuted) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
