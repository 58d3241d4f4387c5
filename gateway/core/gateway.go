// Package core assembles the gateway: one pool manager per configured chain,
// a shared upstream transport, snapshot persistence and the HTTP server.
package core

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-rpc-gateway/gateway/api"
	"github.com/pushchain/push-rpc-gateway/gateway/config"
	"github.com/pushchain/push-rpc-gateway/gateway/db"
	"github.com/pushchain/push-rpc-gateway/gateway/metrics"
	"github.com/pushchain/push-rpc-gateway/gateway/rpcpool"
	"github.com/pushchain/push-rpc-gateway/gateway/snapshot"
	"github.com/pushchain/push-rpc-gateway/gateway/transport"
)

// Gateway owns every long-lived component of a running node
type Gateway struct {
	cfg    *config.Config
	base   zerolog.Logger
	logger zerolog.Logger

	transport rpcpool.Transport
	store     rpcpool.SnapshotStore
	closer    io.Closer

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pools    *PoolRegistry
	server   *api.Server
}

// Option configures a Gateway
type Option func(*Gateway)

// WithTransport replaces the HTTP transport used for upstream calls
func WithTransport(t rpcpool.Transport) Option {
	return func(g *Gateway) {
		g.transport = t
	}
}

// New validates cfg and wires the components. Nothing is started.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.ChainConfigs) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}

	g := &Gateway{
		cfg:      cfg,
		base:     logger,
		logger:   logger.With().Str("component", "gateway").Logger(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	g.metrics = metrics.New(g.registry)

	if g.transport == nil {
		g.transport = transport.NewHTTPTransport(logger,
			transport.WithTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second))
	}

	g.pools = NewPoolRegistry(cfg.DefaultChainID, logger)
	g.server = api.NewServer(logger, cfg.ServerPort, g.pools, g.registry)
	return g, nil
}

// Pools returns the chain registry
func (g *Gateway) Pools() *PoolRegistry {
	return g.pools
}

// Handler returns the routed HTTP handler
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler()
}

// Start bootstraps every pool and then serves HTTP
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.StartPools(ctx); err != nil {
		return err
	}
	if err := g.server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// StartPools opens the snapshot store and bootstraps a pool per chain, in
// ascending chain id order. Any bootstrap failure aborts startup.
func (g *Gateway) StartPools(ctx context.Context) error {
	if err := g.openStore(); err != nil {
		return err
	}

	for _, chainID := range sortedChainIDs(g.cfg.ChainConfigs) {
		if err := g.startPool(ctx, chainID, g.cfg.ChainConfigs[chainID]); err != nil {
			return fmt.Errorf("failed to start pool for chain %s: %w", chainID, err)
		}
	}

	g.logger.Info().
		Int("chains", len(g.cfg.ChainConfigs)).
		Str("default_chain_id", g.pools.DefaultChainID()).
		Msg("all pools started")
	return nil
}

func (g *Gateway) startPool(ctx context.Context, chainID string, chainCfg config.ChainSpecificConfig) error {
	params, err := bootstrapParams(chainID, chainCfg)
	if err != nil {
		return err
	}
	params.UseCached = g.cfg.Snapshot.ReuseOnStart
	params.Transport = g.transport
	params.Store = g.store
	params.Logger = g.base

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.ProbeTimeoutSeconds)*time.Second)
	pool, err := rpcpool.Bootstrap(probeCtx, params)
	cancel()
	if err != nil {
		return err
	}

	opts := []rpcpool.ManagerOption{
		rpcpool.WithSnapshotStore(g.store),
		rpcpool.WithAgreement(rpcpool.NewAgreementPolicy(chainCfg.AgreementStrategy)),
		rpcpool.WithMetrics(g.metrics),
	}
	if g.cfg.Snapshot.PersistMode == config.PersistModeAsync {
		opts = append(opts, rpcpool.WithWriteBehind(time.Duration(g.cfg.Snapshot.FlushIntervalMillis)*time.Millisecond))
	}

	mgr, err := rpcpool.NewManager(pool, g.transport, g.base, opts...)
	if err != nil {
		return err
	}
	mgr.Start(ctx)
	return g.pools.Add(mgr)
}

// openStore selects the snapshot backend
func (g *Gateway) openStore() error {
	if g.store != nil {
		return nil
	}

	dir := g.cfg.Snapshot.Dir
	switch g.cfg.Snapshot.Backend {
	case config.SnapshotBackendSQLite:
		database, err := db.OpenFileDB(dir, config.DatabaseFile, true)
		if err != nil {
			return fmt.Errorf("failed to open snapshot database: %w", err)
		}
		store := snapshot.NewSQLStore(database, g.base)
		g.store, g.closer = store, store
	default:
		store, err := snapshot.NewFileStore(dir, g.base)
		if err != nil {
			return err
		}
		g.store = store
	}

	g.logger.Info().
		Str("backend", string(g.cfg.Snapshot.Backend)).
		Str("dir", filepath.Clean(dir)).
		Str("persist_mode", string(g.cfg.Snapshot.PersistMode)).
		Msg("snapshot store opened")
	return nil
}

// Stop shuts down the server, flushes every pool and releases the store
func (g *Gateway) Stop() error {
	g.logger.Info().Msg("stopping gateway")

	var firstErr error
	if err := g.server.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop API server: %w", err)
	}

	g.pools.StopAll()

	if g.closer != nil {
		if err := g.closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close snapshot store: %w", err)
		}
	}
	if t, ok := g.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}

	g.logger.Info().Msg("gateway stopped")
	return firstErr
}

// bootstrapParams maps a validated chain config onto pool parameters
func bootstrapParams(chainID string, chainCfg config.ChainSpecificConfig) (rpcpool.BootstrapParams, error) {
	kind, err := rpcpool.ParseChainKind(chainCfg.ChainKind)
	if err != nil {
		return rpcpool.BootstrapParams{}, err
	}

	return rpcpool.BootstrapParams{
		Chain: rpcpool.ChainDescriptor{Kind: kind, ID: chainID},
		URLs:  chainCfg.RPCURLs,
		Config: rpcpool.PoolConfig{
			MaxConnections: intOr(chainCfg.MaxConnections, config.DefaultMaxConnections),
			MaxResponses:   intOr(chainCfg.MaxResponses, config.DefaultMaxResponses),
			MaxRetries:     intOr(chainCfg.MaxRetries, config.DefaultMaxRetries),
		},
		Cache: rpcpool.CacheOptions{
			TTL:            chainCfg.CacheTTLMicros,
			ExcludeMethods: append([]string{}, chainCfg.ExcludeMethods...),
		},
	}, nil
}

func intOr(v *int, def int) uint64 {
	if v == nil || *v < 0 {
		return uint64(def)
	}
	return uint64(*v)
}

func sortedChainIDs(chains map[string]config.ChainSpecificConfig) []string {
	ids := make([]string, 0, len(chains))
	for id := range chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := new(big.Int).SetString(ids[i], 10)
		b, _ := new(big.Int).SetString(ids[j], 10)
		if a == nil || b == nil {
			return ids[i] < ids[j]
		}
		return a.Cmp(b) < 0
	})
	return ids
}
