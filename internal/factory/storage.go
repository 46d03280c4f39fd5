// Package factory builds the service's collaborators from configuration.
package factory

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/config"
	storepkg "github.com/hideapp/hide/internal/store"
	"github.com/hideapp/hide/internal/store/memory"
	storepg "github.com/hideapp/hide/internal/store/postgres"
	storesqlite "github.com/hideapp/hide/internal/store/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewStore opens and migrates the store selected by cfg.StoreDriver.
// The returned closer releases the underlying database, if any.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; cards are lost on restart")
		return memory.New(), nopCloser{}, nil
	case config.DriverSQLite:
		db, err := storesqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db, storesqlite.Migrate); err != nil {
			return nil, nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.SQLitePath).Msg("store ready")
		return storesqlite.NewWithDB(db), db, nil
	case config.DriverPostgres:
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db, storepg.Migrate); err != nil {
			return nil, nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")
		return storepg.NewWithDB(db), db, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
}

func migrate(ctx context.Context, db *sql.DB, fn func(context.Context, *sql.DB) error) error {
	if err := fn(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("store migration failed: %w", err)
	}
	return nil
}
