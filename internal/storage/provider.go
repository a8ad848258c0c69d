// Package storage selects and opens the configured Store implementation.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/storage/memory"
	"github.com/JakeFAU/tuml/internal/storage/postgres"
	"github.com/JakeFAU/tuml/internal/storage/sqlite"
	"github.com/JakeFAU/tuml/internal/store"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects a driver and its connection settings.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	MaxConns    int32
}

// Open returns a ready Store for cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (store.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case DriverSQLite, "":
		logger.Debug("Opening sqlite store", zap.String("path", cfg.SQLitePath))
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		logger.Debug("Opening postgres store")
		s, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		logger.Warn("Using in-memory store; state is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
