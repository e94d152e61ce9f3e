package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"wheel-ledger/internal/config"
	"wheel-ledger/pkg/utils"
)

// Open connects the ledger backend selected by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Ledger, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return NewSQLiteStore(cfg.Path, logger)
	case config.DriverPostgres:
		retry := utils.DefaultRetryConfig()
		retry.Retryable = func(err error) bool { return !errors.Is(err, ErrInvalidDSN) }
		pool, err := utils.RetryWithResult(ctx, retry, func() (*Pool, error) {
			p, err := NewPool(ctx, cfg.DSN)
			if err != nil {
				logger.Debug().Err(err).Msg("Postgres not reachable yet")
			}
			return p, err
		})
		if err != nil {
			return nil, err
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
