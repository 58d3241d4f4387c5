package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-rpc-gateway/gateway/api"
	"github.com/pushchain/push-rpc-gateway/gateway/rpcpool"
)

// PoolRegistry maps chain ids to their pool managers
type PoolRegistry struct {
	mu             sync.RWMutex
	managers       map[string]*rpcpool.Manager
	defaultChainID string
	logger         zerolog.Logger
}

// NewPoolRegistry creates an empty registry
func NewPoolRegistry(defaultChainID string, logger zerolog.Logger) *PoolRegistry {
	return &PoolRegistry{
		managers:       make(map[string]*rpcpool.Manager),
		defaultChainID: defaultChainID,
		logger:         logger.With().Str("component", "pool_registry").Logger(),
	}
}

// Add registers a manager; each chain id may be registered once
func (r *PoolRegistry) Add(mgr *rpcpool.Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chainID := mgr.ChainID()
	if _, exists := r.managers[chainID]; exists {
		return fmt.Errorf("pool for chain %s already registered", chainID)
	}
	r.managers[chainID] = mgr
	if r.defaultChainID == "" {
		r.defaultChainID = chainID
	}

	r.logger.Info().Str("chain_id", chainID).Msg("pool registered")
	return nil
}

// Manager implements api.PoolRegistry
func (r *PoolRegistry) Manager(chainID string) (api.PoolManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mgr, ok := r.managers[chainID]
	if !ok {
		return nil, false
	}
	return mgr, true
}

// Managers implements api.PoolRegistry
func (r *PoolRegistry) Managers() []api.PoolManager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.PoolManager, 0, len(r.managers))
	for _, mgr := range r.managers {
		out = append(out, mgr)
	}
	return out
}

// DefaultChainID implements api.PoolRegistry
func (r *PoolRegistry) DefaultChainID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultChainID
}

// StopAll stops every manager, flushing pending snapshots
func (r *PoolRegistry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mgr := range r.managers {
		mgr.Stop()
	}
}
