package badger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/covera/internal/common"
)

// Store is the Badger backed result store and job history
type Store struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig

	partnerMu sync.Mutex
}

// NewStore opens the database at config.Path. Values are JSON encoded so
// free-form progress maps round-trip without type registration.
func NewStore(logger arbor.ILogger, config *common.BadgerConfig) (*Store, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	return &Store{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

func (s *Store) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
