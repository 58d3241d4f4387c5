package rpcpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// MockTransport is a mock implementation of Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, url string, req *jsonrpc.Request) (*jsonrpc.Record, error) {
	args := m.Called(ctx, url, req)
	if fn, ok := args.Get(0).(func(context.Context, string, *jsonrpc.Request) *jsonrpc.Record); ok {
		return fn(ctx, url, req), args.Error(1)
	}
	rec, _ := args.Get(0).(*jsonrpc.Record)
	return rec, args.Error(1)
}

func methodIs(method string) interface{} {
	return mock.MatchedBy(func(req *jsonrpc.Request) bool {
		return req.Method == method
	})
}

func record(method string, result jsonrpc.Value, ms int64, at time.Time) *jsonrpc.Record {
	return &jsonrpc.Record{
		Method:    method,
		Params:    jsonrpc.TextArray(),
		Result:    result,
		TimeTaken: ms,
		StartTime: at,
	}
}

// memStore is an in-memory SnapshotStore
type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
	err   error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Load(_ context.Context, chainID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.data[chainID], nil
}

func (s *memStore) Save(_ context.Context, chainID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.data[chainID] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memStore) pool(chainID string) *Pool {
	s.mu.Lock()
	data := s.data[chainID]
	s.mu.Unlock()
	if data == nil {
		return nil
	}
	p, err := DecodePool(data)
	if err != nil {
		panic(err)
	}
	return p
}

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestPool builds a pool whose endpoints carry one seed observation with
// the given average latency.
func newTestPool(cfg PoolConfig, ttl int64, avgs map[string]int64, order ...string) *Pool {
	endpoints := make([]*Endpoint, len(order))
	for i, url := range order {
		endpoints[i] = NewEndpoint(url, record(ProbeMethod, jsonrpc.Text("0x5"), avgs[url], baseTime))
	}
	return &Pool{
		Chain:         ChainDescriptor{Kind: ChainKindEVM, ID: "5"},
		Endpoints:     endpoints,
		Config:        cfg,
		Cache:         CacheOptions{TTL: ttl},
		ResponseCache: ResponseCache{},
	}
}

func urlsOf(p *Pool) []string {
	urls := make([]string, len(p.Endpoints))
	for i, ep := range p.Endpoints {
		urls[i] = ep.URL
	}
	return urls
}

func endpointByURL(p *Pool, url string) *Endpoint {
	for _, ep := range p.Endpoints {
		if ep.URL == url {
			return ep
		}
	}
	return nil
}
