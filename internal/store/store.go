// Package store opens the repositories for the configured engine.
package store

import (
	"context"
	"fmt"

	"link-tracker/internal/config"
	"link-tracker/internal/repository"
	"link-tracker/internal/repository/postgres"
	"link-tracker/internal/repository/sqlite"
)

// Store bundles the repositories of one engine with its shutdown hook
type Store struct {
	Links  repository.LinkRepository
	Visits repository.VisitRepository
	Tx     repository.Transactor
	close  func()
}

// Open connects to the engine named by cfg.Store.Driver and migrates it
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return &Store{
			Links:  sqlite.NewLinkRepository(db),
			Visits: sqlite.NewVisitRepository(db),
			Tx:     sqlite.NewTransactor(db),
			close:  func() { db.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := postgres.InitDB(
			ctx,
			cfg.Database.DatabaseDSN(),
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			return nil, err
		}
		return &Store{
			Links:  postgres.NewLinkRepository(pool),
			Visits: postgres.NewVisitRepository(pool),
			Tx:     postgres.NewTransactor(pool),
			close:  pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// Close releases the underlying connections
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}
