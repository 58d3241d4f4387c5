package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-rpc-gateway/gateway/metrics"
)

// Persister writes pool snapshots behind the request path. Only the newest
// submitted snapshot is kept; it is flushed on every tick and on Stop.
type Persister struct {
	chainID  string
	store    SnapshotStore
	interval time.Duration
	metrics  metrics.Recorder
	logger   zerolog.Logger

	mu         sync.Mutex
	pending    []byte
	pendingSeq uint64
	flushedSeq uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPersister creates a write-behind persister for one chain
func NewPersister(chainID string, store SnapshotStore, interval time.Duration, recorder metrics.Recorder, logger zerolog.Logger) *Persister {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Persister{
		chainID:  chainID,
		store:    store,
		interval: interval,
		metrics:  recorder,
		logger:   logger.With().Str("component", "snapshot_persister").Str("chain_id", chainID).Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Submit replaces the pending snapshot when seq is newer than what is held
func (p *Persister) Submit(seq uint64, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq <= p.pendingSeq || seq <= p.flushedSeq {
		return
	}
	p.pending = data
	p.pendingSeq = seq
}

// Pending reports whether a snapshot is waiting to be written
func (p *Persister) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Flush writes the pending snapshot, if any. A failed write is requeued
// unless a newer snapshot arrived meanwhile.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	data, seq := p.pending, p.pendingSeq
	p.pending = nil
	p.mu.Unlock()

	if data == nil {
		return nil
	}

	err := p.store.Save(ctx, p.chainID, data)
	p.metrics.RecordSnapshotWrite(p.chainID, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.pending == nil {
			p.pending = data
		}
		return err
	}
	if seq > p.flushedSeq {
		p.flushedSeq = seq
	}
	return nil
}

// Start begins the flush loop
func (p *Persister) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Persister) run(ctx context.Context) {
	defer p.wg.Done()

	p.logger.Debug().Dur("interval", p.interval).Msg("starting snapshot persister")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("snapshot persister stopping: context cancelled")
			return
		case <-p.stopCh:
			p.logger.Debug().Msg("snapshot persister stopping: stop signal received")
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("failed to flush pool snapshot")
			}
		}
	}
}

// Stop ends the flush loop and writes any pending snapshot
func (p *Persister) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	if err := p.Flush(context.Background()); err != nil {
		p.logger.Error().Err(err).Msg("failed to flush pool snapshot on stop")
	}
}
