package rpcpool

import (
	"context"
	"sync"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

// EndpointResult is one endpoint's answer to a broadcast
type EndpointResult struct {
	URL    string          `json:"url"`
	Record *jsonrpc.Record `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`

	err error
}

// Err returns the endpoint's failure, if any
func (r EndpointResult) Err() error {
	return r.err
}

// BroadcastResult holds every endpoint's answer in pool order, plus the
// agreement policy's pick when it made one.
type BroadcastResult struct {
	Agreement string           `json:"agreement"`
	Results   []EndpointResult `json:"results"`
	Decision  *EndpointResult  `json:"decision,omitempty"`
}

// Broadcast sends req to every endpoint concurrently. It bypasses the cache
// and never touches pool counters, rankings or history.
func (m *Manager) Broadcast(ctx context.Context, req *jsonrpc.Request) (*BroadcastResult, error) {
	if req == nil {
		return nil, gwerrors.NewInternalError(m.chainID, "nil request", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	urls := make([]string, len(m.pool.Endpoints))
	for i, ep := range m.pool.Endpoints {
		urls[i] = ep.URL
	}
	m.mu.Unlock()

	results := make([]EndpointResult, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			rec, err := m.transport.Send(ctx, url, req)
			results[i] = EndpointResult{URL: url, Record: rec}
			if err != nil {
				err = withChain(err, m.chainID)
				results[i].err = err
				results[i].Error = gwerrors.ClientMessage(err)
			}
		}(i, url)
	}
	wg.Wait()

	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
		}
	}
	m.metrics.RecordBroadcast(m.chainID, len(results), failures)

	m.logger.Debug().
		Str("method", req.Method).
		Int("endpoints", len(results)).
		Int("failures", failures).
		Msg("broadcast completed")

	return &BroadcastResult{
		Agreement: m.agreement.Name(),
		Results:   results,
		Decision:  m.agreement.Decide(results),
	}, nil
}
