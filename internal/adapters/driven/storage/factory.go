// Package storage selects the document backend named by the settings.
package storage

import (
	"context"
	"fmt"

	"github.com/custodia-labs/jam/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jam/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/jam/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/logger"
)

// NewBackend opens the backend configured in cfg.
func NewBackend(ctx context.Context, cfg domain.StoreSettings) (driven.DocumentBackend, error) {
	logger.Debug("Opening %s backend", cfg.Backend.Description())

	switch cfg.Backend {
	case domain.StorageBackendMemory:
		return memory.NewBackend(), nil
	case domain.StorageBackendSQLite, "":
		return sqlite.NewStore(cfg.DataDir)
	case domain.StorageBackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%w: postgres backend requires a DSN", domain.ErrInvalidInput)
		}
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}
