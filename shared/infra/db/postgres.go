package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nastyazhadan/trading-hub/shared/infra/db/migrator"
)

type Options struct {
	MaxConns int32
}

// SetupDB opens a pool, verifies it and applies every pending migration from migrationsFS.
func SetupDB(ctx context.Context, dbURI string, migrationsFS fs.FS, options Options) (*pgxpool.Pool, error) {
	pool, err := newPgxPool(ctx, dbURI, options)
	if err != nil {
		return nil, fmt.Errorf("newPgxPool: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := migrator.NewMigrator(sqlDB, migrationsFS).Up(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrator.Up: %w", err)
	}

	return pool, nil
}

func newPgxPool(ctx context.Context, dbURI string, options Options) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURI)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	if options.MaxConns > 0 {
		poolConfig.MaxConns = options.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}

	return pool, nil
}
