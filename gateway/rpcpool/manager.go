package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
	"github.com/pushchain/push-rpc-gateway/gateway/metrics"
)

// promoteRank is the rank moved to primary after the old primary is demoted
const promoteRank = 1

// Manager owns the pool of one chain for the lifetime of the process. All
// pool mutations happen under mu; upstream calls run outside it.
type Manager struct {
	chainID   string
	pool      *Pool
	transport Transport
	retry     *retryExecutor
	agreement AgreementPolicy
	metrics   metrics.Recorder
	logger    zerolog.Logger
	now       func() time.Time

	store         SnapshotStore
	flushInterval time.Duration
	persister     *Persister
	seq           uint64
	writeMu       sync.Mutex
	writtenSeq    uint64

	mu sync.Mutex
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithSnapshotStore checkpoints the pool into store after every mutation
func WithSnapshotStore(store SnapshotStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithWriteBehind defers snapshot writes to a background persister that
// flushes every interval
func WithWriteBehind(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.flushInterval = interval
	}
}

// WithAgreement sets the broadcast agreement policy
func WithAgreement(policy AgreementPolicy) ManagerOption {
	return func(m *Manager) {
		if policy != nil {
			m.agreement = policy
		}
	}
}

// WithMetrics reports pool activity to recorder
func WithMetrics(recorder metrics.Recorder) ManagerOption {
	return func(m *Manager) {
		if recorder != nil {
			m.metrics = recorder
		}
	}
}

// WithClock overrides the clock used for cache freshness
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager wraps a bootstrapped pool
func NewManager(pool *Pool, transport Transport, logger zerolog.Logger, opts ...ManagerOption) (*Manager, error) {
	if pool == nil {
		return nil, gwerrors.NewConfigError("", "nil pool")
	}
	if err := pool.validate(); err != nil {
		return nil, gwerrors.NewConfigError(pool.Chain.ID, err.Error())
	}
	if transport == nil {
		return nil, gwerrors.NewConfigError(pool.Chain.ID, "no transport configured")
	}

	m := &Manager{
		chainID:   pool.Chain.ID,
		pool:      pool,
		transport: transport,
		agreement: NewAgreementPolicy(""),
		metrics:   metrics.Noop{},
		logger:    logger.With().Str("component", "rpc_pool").Str("chain_id", pool.Chain.ID).Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.retry = newRetryExecutor(m.chainID, transport, pool.Config.MaxRetries, m.metrics, m.logger)
	if m.store != nil && m.flushInterval > 0 {
		m.persister = NewPersister(m.chainID, m.store, m.flushInterval, m.metrics, logger)
	}

	if len(pool.Cache.ExcludeMethods) > 0 {
		m.logger.Warn().
			Strs("exclude_methods", pool.Cache.ExcludeMethods).
			Msg("exclude_methods is configured but not enforced; every method is cached")
	}

	return m, nil
}

// ChainID returns the decimal chain id served by this manager
func (m *Manager) ChainID() string {
	return m.chainID
}

// Start launches the write-behind persister when configured
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info().
		Int("endpoint_count", m.endpointCount()).
		Str("agreement", m.agreement.Name()).
		Bool("write_behind", m.persister != nil).
		Msg("starting RPC pool manager")

	if m.persister != nil {
		m.persister.Start(ctx)
	}
}

// Stop flushes any pending snapshot
func (m *Manager) Stop() {
	m.logger.Info().Msg("stopping RPC pool manager")
	if m.persister != nil {
		m.persister.Stop()
	}
	m.logger.Info().Msg("RPC pool manager stopped")
}

// Request serves one call. A fresh cache slot for the method is returned
// without touching any endpoint. Otherwise the primary is rotated away when
// overloaded, admitted, and tried up to MaxRetries times.
func (m *Manager) Request(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if req == nil {
		return nil, gwerrors.NewInternalError(m.chainID, "nil request", nil)
	}

	m.mu.Lock()
	if rec, ok := m.pool.ResponseCache.lookup(req.Method, m.now(), m.pool.Cache.TTL); ok {
		m.mu.Unlock()
		m.metrics.RecordRequest(m.chainID, metrics.OutcomeCacheHit)
		m.logger.Debug().Str("method", req.Method).Msg("served from cache")
		return rec.Response(req.ID), nil
	}

	if m.pool.overloaded() {
		demoted := m.pool.primary()
		m.pool.rotate(promoteRank)
		m.metrics.RecordRotation(m.chainID, metrics.RotationOverload)
		m.logger.Debug().
			Str("demoted", demoted.URL).
			Str("primary", m.pool.primary().URL).
			Msg("primary overloaded, rotated")
	}

	ep := m.pool.primary()
	ep.admit()
	m.metrics.SetInflight(m.chainID, ep.URL, ep.Connections)
	snap := m.encodeLocked()
	m.mu.Unlock()
	m.checkpoint(ctx, snap)

	rec, err := m.retry.do(ctx, ep.URL, req)

	m.mu.Lock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		ep.release()
		m.metrics.SetInflight(m.chainID, ep.URL, ep.Connections)
		snap = m.encodeLocked()
		m.mu.Unlock()
		m.checkpoint(ctx, snap)

		m.logger.Debug().
			Err(ctxErr).
			Str("url", ep.URL).
			Str("method", req.Method).
			Msg("request abandoned by client")
		return nil, ctxErr
	}
	if err != nil {
		if m.pool.isPrimary(ep) {
			m.pool.rotate(promoteRank)
			m.metrics.RecordRotation(m.chainID, metrics.RotationFailure)
		}
		primary := m.pool.primary().URL
		snap = m.encodeLocked()
		m.mu.Unlock()
		m.checkpoint(ctx, snap)

		m.metrics.RecordRequest(m.chainID, metrics.OutcomeFailure)
		m.logger.Warn().
			Err(err).
			Str("url", ep.URL).
			Str("method", req.Method).
			Str("primary", primary).
			Msg("request failed, rotated away from endpoint")
		return nil, err
	}

	ep.observe(rec)
	m.pool.ResponseCache.store(req.Method, rec)
	m.pool.sortByLatency()
	m.metrics.SetInflight(m.chainID, ep.URL, ep.Connections)
	snap = m.encodeLocked()
	m.mu.Unlock()
	m.checkpoint(ctx, snap)

	m.metrics.RecordRequest(m.chainID, metrics.OutcomeSuccess)
	return rec.Response(req.ID), nil
}

type snapshot struct {
	seq  uint64
	data []byte
}

// encodeLocked serialises the pool; mu must be held
func (m *Manager) encodeLocked() snapshot {
	if m.store == nil {
		return snapshot{}
	}
	data, err := m.pool.Encode()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to encode pool snapshot")
		return snapshot{}
	}
	m.seq++
	return snapshot{seq: m.seq, data: data}
}

// checkpoint hands the snapshot to the persister, or writes it directly.
// Direct writes never let an older snapshot overwrite a newer one.
func (m *Manager) checkpoint(ctx context.Context, snap snapshot) {
	if snap.data == nil {
		return
	}
	if m.persister != nil {
		m.persister.Submit(snap.seq, snap.data)
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if snap.seq <= m.writtenSeq {
		return
	}

	err := m.store.Save(context.WithoutCancel(ctx), m.chainID, snap.data)
	m.metrics.RecordSnapshotWrite(m.chainID, err)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist pool snapshot")
		return
	}
	m.writtenSeq = snap.seq
}

func (m *Manager) endpointCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pool.Endpoints)
}

// Stats returns a point-in-time view of the pool
func (m *Manager) Stats() *PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.pool.stats()
	stats.Agreement = m.agreement.Name()
	return stats
}

// Snapshot returns a deep copy of the pool
func (m *Manager) Snapshot() (*Pool, error) {
	m.mu.Lock()
	data, err := m.pool.Encode()
	m.mu.Unlock()
	if err != nil {
		return nil, gwerrors.NewInternalError(m.chainID, "failed to encode pool", err)
	}
	return DecodePool(data)
}
