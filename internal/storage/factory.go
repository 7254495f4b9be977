package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/storage/badger"
	"github.com/ternarybob/covera/internal/storage/postgres"
)

// Backend is a result store that also keeps job history
type Backend interface {
	interfaces.ResultStore
	interfaces.JobHistoryStorage
}

// NewResultStore opens the backend named by config.Type
func NewResultStore(ctx context.Context, config *common.StorageConfig, logger arbor.ILogger) (Backend, error) {
	switch config.Type {
	case "", "badger":
		store, err := badger.NewStore(logger, &config.Badger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.NewStore(ctx, &config.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected badger or postgres)", config.Type)
	}
}
