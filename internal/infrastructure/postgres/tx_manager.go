package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nastyazhadan/trading-hub/internal/repository"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

const (
	UniqueViolationCode      = "23505"
	SerializationFailureCode = "40001"
	DeadlockDetectedCode     = "40P01"
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func (s *Store) Orders() repository.OrderRepository {
	return NewOrderStore(s.pool)
}

func (s *Store) Portfolios() repository.PortfolioRepository {
	return NewPortfolioStore(s.pool)
}

func (s *Store) Settlements() repository.SettlementJournal {
	return NewSettlementStore(s.pool)
}

func (s *Store) Remediations() repository.RemediationQueue {
	return NewRemediationStore(s.pool)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithinTransaction begins a transaction, stores it in ctx and commits when fn
// returns nil. A nested call joins the outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	const op = "postgres.Store.WithinTransaction"

	return within(ctx, op, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithinReadTransaction runs fn against one REPEATABLE READ read-only
// snapshot. A call made inside any transaction joins it.
func (s *Store) WithinReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	const op = "postgres.Store.WithinReadTransaction"

	return within(ctx, op, s.pool, readOnly, fn)
}

var readOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func within(
	ctx context.Context,
	op string,
	pool *pgxpool.Pool,
	options pgx.TxOptions,
	fn func(ctx context.Context) error,
) error {
	if _, found := txFromContext(ctx); found {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, options)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, mapError(err))
	}
	committed = true

	return nil
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, found := ctx.Value(txKey{}).(pgx.Tx); found {
		return tx
	}
	return pool
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, found := ctx.Value(txKey{}).(pgx.Tx)
	return tx, found
}

func pgErrorCode(err error) string {
	var postgresErr *pgconn.PgError

	if errors.As(err, &postgresErr) {
		return postgresErr.Code
	}

	return ""
}

func isDuplicateKey(err error) bool {
	return pgErrorCode(err) == UniqueViolationCode
}

// mapError turns retryable concurrency failures into ErrVersionConflict.
func mapError(err error) error {
	switch pgErrorCode(err) {
	case SerializationFailureCode, DeadlockDetectedCode:
		return fmt.Errorf("%w: %v", repositoryErrors.ErrVersionConflict, err)
	default:
		return err
	}
}
