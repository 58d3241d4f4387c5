package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushchain/push-rpc-gateway/gateway/db"
	"github.com/pushchain/push-rpc-gateway/gateway/store"
)

// SQLStore keeps one row per chain id in a sqlite database.
type SQLStore struct {
	db     *db.DB
	logger zerolog.Logger
}

// NewSQLStore wraps an opened, migrated database
func NewSQLStore(database *db.DB, logger zerolog.Logger) *SQLStore {
	return &SQLStore{
		db:     database,
		logger: logger.With().Str("component", "snapshot_store").Str("backend", "sqlite").Logger(),
	}
}

// Load returns nil data when no snapshot exists
func (s *SQLStore) Load(ctx context.Context, chainID string) ([]byte, error) {
	var row store.PoolSnapshot
	err := s.db.Client().WithContext(ctx).Where("chain_id = ?", chainID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return row.Data, nil
}

// Save inserts or replaces the snapshot of chainID
func (s *SQLStore) Save(ctx context.Context, chainID string, data []byte) error {
	row := store.PoolSnapshot{ChainID: chainID, Data: data, Size: len(data)}
	err := s.db.Client().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "size", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug().Str("chain_id", chainID).Int("bytes", len(data)).Msg("saved pool snapshot")
	return nil
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
