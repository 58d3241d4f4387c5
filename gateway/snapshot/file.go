// Package snapshot provides durable stores for pool snapshots.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	fileExt  = ".json"
	dirPerm  = 0o750
	filePerm = 0o600
)

// FileStore keeps one JSON document per chain id in a directory. Writes go
// to a temp file in the same directory which is then renamed over the target.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "snapshot_store").Str("backend", "file").Logger(),
	}, nil
}

// Path returns the snapshot file of chainID
func (s *FileStore) Path(chainID string) string {
	return filepath.Join(s.dir, chainID+fileExt)
}

// Load returns nil data when no snapshot exists
func (s *FileStore) Load(_ context.Context, chainID string) ([]byte, error) {
	if err := checkChainID(chainID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(chainID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Save atomically replaces the snapshot of chainID
func (s *FileStore) Save(_ context.Context, chainID string, data []byte) error {
	if err := checkChainID(chainID); err != nil {
		return err
	}

	f, err := os.CreateTemp(s.dir, chainID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(f.Name(), filePerm)
	}
	if err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}

	if err := os.Rename(f.Name(), s.Path(chainID)); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to install snapshot: %w", err)
	}

	s.logger.Debug().Str("chain_id", chainID).Int("bytes", len(data)).Msg("saved pool snapshot")
	return nil
}

func checkChainID(chainID string) error {
	if chainID == "" || strings.ContainsAny(chainID, `/\.`) {
		return fmt.Errorf("invalid chain id %q", chainID)
	}
	return nil
}
