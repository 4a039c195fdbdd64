package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its base FS and dialect in package state.
var gooseMutex sync.Mutex

type Migrator struct {
	db           *sql.DB
	migrationsFS fs.FS
}

func NewMigrator(db *sql.DB, migrationsFS fs.FS) *Migrator {
	return &Migrator{
		db:           db,
		migrationsFS: migrationsFS,
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	gooseMutex.Lock()
	defer gooseMutex.Unlock()

	goose.SetBaseFS(m.migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	return goose.UpContext(ctx, m.db, ".")
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	gooseMutex.Lock()
	defer gooseMutex.Unlock()

	goose.SetBaseFS(m.migrationsFS)
	defer goose.SetBaseFS(nil)

	return goose.GetDBVersionContext(ctx, m.db)
}
