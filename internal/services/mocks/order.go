package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
)

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	args := m.Called(ctx, ownerID)
	return args.Bool(0), args.Error(1)
}

type MockOrderFinder struct {
	mock.Mock
}

func (m *MockOrderFinder) FindMatchable(ctx context.Context, symbol string, price decimal.Decimal) ([]models.Order, error) {
	args := m.Called(ctx, symbol, price)
	if orders, ok := args.Get(0).([]models.Order); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) ExecuteOrdersAtPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	args := m.Called(ctx, symbol, price)
	return args.Int(0), args.Error(1)
}

type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Apply(ctx context.Context, orderID uuid.UUID) (models.Portfolio, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(models.Portfolio), args.Error(1)
}
