package rpcpool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

// ProbeMethod is the call used to confirm each endpoint serves the expected chain
const ProbeMethod = "eth_chainId"

// BootstrapParams holds everything needed to build a pool
type BootstrapParams struct {
	Chain     ChainDescriptor
	URLs      []string
	Config    PoolConfig
	Cache     CacheOptions
	UseCached bool
	Transport Transport
	Store     SnapshotStore
	Logger    zerolog.Logger
}

// Bootstrap builds a validated pool. With UseCached set and a snapshot on
// record, the snapshot is returned as is. Otherwise every URL is probed
// concurrently; any probe failure or chain id mismatch aborts without
// persisting anything.
func Bootstrap(ctx context.Context, params BootstrapParams) (*Pool, error) {
	chainID := params.Chain.ID
	logger := params.Logger.With().
		Str("component", "bootstrap").
		Str("chain_id", chainID).
		Logger()

	if len(params.URLs) == 0 {
		return nil, gwerrors.NewConfigError(chainID, "no rpc urls configured")
	}
	if params.Transport == nil {
		return nil, gwerrors.NewConfigError(chainID, "no transport configured")
	}

	if params.UseCached && params.Store != nil {
		pool, err := loadSnapshot(ctx, params.Store, chainID)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			logger.Info().
				Int("endpoint_count", len(pool.Endpoints)).
				Str("primary", pool.primary().URL).
				Msg("reusing pool snapshot")
			return pool, nil
		}
	}

	logger.Info().Int("endpoint_count", len(params.URLs)).Msg("probing endpoints")

	records, err := probe(ctx, params.Transport, params.URLs)
	if err != nil {
		return nil, withChain(err, chainID)
	}

	for i, rec := range records {
		got, err := decodeChainID(rec)
		if err != nil {
			return nil, gwerrors.NewDecodeError(chainID, err.Error(), err).WithContext("url", params.URLs[i])
		}
		if got != chainID {
			return nil, gwerrors.NewChainIDMismatchError(chainID, got, params.URLs[i])
		}
	}

	endpoints := make([]*Endpoint, len(params.URLs))
	for i, url := range params.URLs {
		endpoints[i] = NewEndpoint(url, records[i])
	}

	pool := &Pool{
		Chain:         params.Chain,
		Endpoints:     endpoints,
		Config:        params.Config,
		Cache:         params.Cache,
		ResponseCache: ResponseCache{},
	}
	pool.ResponseCache.store(ProbeMethod, records[len(records)-1])
	pool.sortByLatency()

	if params.Store != nil {
		data, err := pool.Encode()
		if err != nil {
			return nil, gwerrors.NewInternalError(chainID, "failed to encode pool", err)
		}
		if err := params.Store.Save(ctx, chainID, data); err != nil {
			return nil, gwerrors.NewSnapshotError(chainID, "failed to persist pool", err)
		}
	}

	logger.Info().
		Str("primary", pool.primary().URL).
		Int64("primary_avg_ms", pool.primary().AvgResponseTime).
		Msg("pool bootstrapped")

	return pool, nil
}

func loadSnapshot(ctx context.Context, store SnapshotStore, chainID string) (*Pool, error) {
	data, err := store.Load(ctx, chainID)
	if err != nil {
		return nil, gwerrors.NewSnapshotError(chainID, "failed to load pool snapshot", err)
	}
	if data == nil {
		return nil, nil
	}
	pool, err := DecodePool(data)
	if err != nil {
		return nil, gwerrors.NewDecodeError(chainID, "invalid pool snapshot", err)
	}
	return pool, nil
}

// probe calls every url in parallel and waits for all of them. The first
// failure cancels the remaining probes.
func probe(ctx context.Context, transport Transport, urls []string) ([]*jsonrpc.Record, error) {
	records := make([]*jsonrpc.Record, len(urls))
	g, gctx := errgroup.WithContext(ctx)

	for i, url := range urls {
		g.Go(func() error {
			req := jsonrpc.NewRequest(ProbeMethod, jsonrpc.TextArray(), jsonrpc.NumericID(1))
			rec, err := transport.Send(gctx, url, req)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// decodeChainID turns a 0x-prefixed hex quantity into its decimal form
func decodeChainID(rec *jsonrpc.Record) (string, error) {
	if rec.Error != nil {
		return "", fmt.Errorf("%s returned error: %s", ProbeMethod, rec.Error.Message)
	}
	s, ok := rec.Result.AsText()
	if !ok {
		return "", fmt.Errorf("%s returned %s, expected a hex string", ProbeMethod, rec.Result.Kind())
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("%s returned %q, expected a 0x-prefixed hex string", ProbeMethod, s)
	}
	n, ok := math.ParseBig256(s)
	if !ok {
		return "", fmt.Errorf("%s returned invalid hex %q", ProbeMethod, s)
	}
	return n.String(), nil
}
