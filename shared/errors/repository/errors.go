package repository

import "errors"

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrOrderAlreadyExists       = errors.New("order already exists")
	ErrVersionConflict          = errors.New("version conflict")
	ErrPortfolioNotFound        = errors.New("portfolio not found")
	ErrPortfolioAlreadyExists   = errors.New("portfolio already exists")
	ErrPortfolioNotLocked       = errors.New("portfolio is not locked by the current transaction")
	ErrSettlementAlreadyApplied = errors.New("settlement already applied")
	ErrNoTransaction            = errors.New("operation requires a transaction")
	ErrReadOnlyTransaction      = errors.New("write inside a read-only transaction")
	ErrPriceNotFound            = errors.New("reference price not found")
)
