package rpcpool

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

func newTestManager(t *testing.T, pool *Pool, transport Transport, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(pool, transport, zerolog.New(zerolog.NewTestWriter(t)), opts...)
	require.NoError(t, err)
	return m
}

func blockNumberRequest(id int64) *jsonrpc.Request {
	return jsonrpc.NewRequest("eth_blockNumber", jsonrpc.TextArray(), jsonrpc.NumericID(id))
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, new(MockTransport), zerolog.Nop())
	assert.True(t, gwerrors.IsChainError(err, gwerrors.ErrCodeConfig))

	_, err = NewManager(&Pool{Chain: ChainDescriptor{ID: "5"}}, new(MockTransport), zerolog.Nop())
	assert.True(t, gwerrors.IsChainError(err, gwerrors.ErrCodeConfig))

	pool := newTestPool(PoolConfig{}, 0, nil, "http://a")
	_, err = NewManager(pool, nil, zerolog.Nop())
	assert.True(t, gwerrors.IsChainError(err, gwerrors.ErrCodeConfig))
}

func TestManagerSuccessBookkeeping(t *testing.T) {
	clock := newFakeClock(baseTime)
	store := newMemStore()
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 3}, 0,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	m := newTestManager(t, pool, transport, WithClock(clock.Now), WithSnapshotStore(store))

	reply := record("eth_blockNumber", jsonrpc.Text("0x10"), 30, baseTime.Add(time.Second))
	transport.On("Send", mock.Anything, "http://a", methodIs("eth_blockNumber")).Return(reply, nil).Once()

	clock.Advance(time.Second)
	resp, err := m.Request(context.Background(), blockNumberRequest(9))
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.NumericID(9), resp.ID)
	assert.Equal(t, jsonrpc.Text("0x10"), resp.Result)
	assert.Nil(t, resp.Error)

	a := endpointByURL(pool, "http://a")
	assert.Equal(t, uint64(0), a.Connections)
	assert.Equal(t, uint64(1), a.ResponseCounter)
	assert.Len(t, a.Responses, 2)
	assert.Equal(t, int64(20), a.AvgResponseTime)
	assert.Same(t, reply, pool.ResponseCache["eth_blockNumber"])

	// Checkpoint after admission and after bookkeeping
	assert.Equal(t, 2, store.saveCount())
	persisted := store.pool("5")
	require.NotNil(t, persisted)
	assert.Equal(t, uint64(1), endpointByURL(persisted, "http://a").ResponseCounter)
	transport.AssertExpectations(t)
}

// Scenario C
func TestManagerOverloadRotation(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 1, MaxResponses: 1, MaxRetries: 1}, 0,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	transport.On("Send", mock.Anything, "http://a", mock.Anything).
		Return(record("eth_blockNumber", jsonrpc.Text("0x1"), 30, baseTime), nil).Twice()
	transport.On("Send", mock.Anything, "http://b", mock.Anything).
		Return(record("eth_blockNumber", jsonrpc.Text("0x2"), 5, baseTime), nil).Once()

	for i := int64(1); i <= 2; i++ {
		clock.Advance(time.Second)
		_, err := m.Request(context.Background(), blockNumberRequest(i))
		require.NoError(t, err)
		assert.Equal(t, "http://a", pool.primary().URL)
	}

	a := endpointByURL(pool, "http://a")
	require.Equal(t, uint64(2), a.ResponseCounter)

	clock.Advance(time.Second)
	resp, err := m.Request(context.Background(), blockNumberRequest(3))
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.Text("0x2"), resp.Result)

	assert.Equal(t, uint64(0), a.ResponseCounter)
	assert.NotEqual(t, "http://a", pool.primary().URL)
	assert.Equal(t, uint64(1), endpointByURL(pool, "http://b").ResponseCounter)
	transport.AssertExpectations(t)
}

func TestManagerConnectionOverloadRotatesBeforeDispatch(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 1, MaxResponses: 100, MaxRetries: 1}, 0,
		map[string]int64{"http://a": 10, "http://b": 20, "http://c": 30}, "http://a", "http://b", "http://c")
	pool.Endpoints[0].Connections = 2
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	transport.On("Send", mock.Anything, "http://b", mock.Anything).
		Return(record("eth_blockNumber", jsonrpc.Text("0x2"), 20, baseTime), nil).Once()

	clock.Advance(time.Second)
	_, err := m.Request(context.Background(), blockNumberRequest(1))
	require.NoError(t, err)

	transport.AssertExpectations(t)
	transport.AssertNotCalled(t, "Send", mock.Anything, "http://a", mock.Anything)
}

// Scenario D
func TestManagerCacheHitPerformsNoAccounting(t *testing.T) {
	clock := newFakeClock(baseTime)
	store := newMemStore()
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 0, MaxResponses: 0, MaxRetries: 1}, 1_000_000,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	cached := record("eth_blockNumber", jsonrpc.Text("0xff"), 7, baseTime.Add(-100*time.Microsecond))
	pool.ResponseCache.store("eth_blockNumber", cached)
	pool.Endpoints[0].ResponseCounter = 3
	before, err := pool.Encode()
	require.NoError(t, err)

	m := newTestManager(t, pool, transport, WithClock(clock.Now), WithSnapshotStore(store))

	for i := int64(1); i <= 3; i++ {
		resp, err := m.Request(context.Background(), blockNumberRequest(i))
		require.NoError(t, err)
		assert.Equal(t, jsonrpc.Text("0xff"), resp.Result)
		assert.Equal(t, jsonrpc.NumericID(i), resp.ID)
	}

	after, err := pool.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, 0, store.saveCount())
	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestManagerStaleCacheGoesUpstream(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 1}, 100,
		map[string]int64{"http://a": 10}, "http://a")
	pool.ResponseCache.store("eth_blockNumber", record("eth_blockNumber", jsonrpc.Text("0x1"), 7, baseTime))
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	fresh := record("eth_blockNumber", jsonrpc.Text("0x2"), 7, baseTime.Add(101*time.Microsecond))
	transport.On("Send", mock.Anything, "http://a", mock.Anything).Return(fresh, nil).Once()

	clock.Advance(101 * time.Microsecond)
	resp, err := m.Request(context.Background(), blockNumberRequest(1))
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.Text("0x2"), resp.Result)
	assert.Same(t, fresh, pool.ResponseCache["eth_blockNumber"])
	transport.AssertExpectations(t)
}

// Scenario E
func TestManagerRetrySucceedsOnThirdAttempt(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 3}, 0,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	failure := gwerrors.NewTransportError("", "http://a", "Bad Gateway", "flaky", nil)
	transport.On("Send", mock.Anything, "http://a", mock.Anything).Return(nil, failure).Twice()
	transport.On("Send", mock.Anything, "http://a", mock.Anything).
		Return(record("eth_blockNumber", jsonrpc.Text("0x3"), 10, baseTime), nil).Once()

	clock.Advance(time.Second)
	resp, err := m.Request(context.Background(), blockNumberRequest(1))
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.Text("0x3"), resp.Result)

	a := endpointByURL(pool, "http://a")
	assert.Equal(t, uint64(1), a.ResponseCounter)
	assert.Len(t, a.Responses, 2)
	assert.Equal(t, uint64(0), a.Connections)
	assert.Equal(t, "http://a", pool.primary().URL)
	transport.AssertNumberOfCalls(t, "Send", 3)
}

func TestManagerRetriesExhausted(t *testing.T) {
	clock := newFakeClock(baseTime)
	store := newMemStore()
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 3}, 0,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	m := newTestManager(t, pool, transport, WithClock(clock.Now), WithSnapshotStore(store))

	first := gwerrors.NewTransportError("", "http://a", "Bad Gateway", "first failure", nil)
	second := gwerrors.NewTransportError("", "http://a", "Gateway Timeout", "second failure", nil)
	last := gwerrors.NewTransportError("", "http://a", "Internal Server Error", "node exploded", nil)
	transport.On("Send", mock.Anything, "http://a", mock.Anything).Return(nil, first).Once()
	transport.On("Send", mock.Anything, "http://a", mock.Anything).Return(nil, second).Once()
	transport.On("Send", mock.Anything, "http://a", mock.Anything).Return(nil, last).Once()

	clock.Advance(time.Second)
	resp, err := m.Request(context.Background(), blockNumberRequest(1))
	require.Error(t, err)
	assert.Nil(t, resp)

	assert.True(t, gwerrors.IsChainError(err, gwerrors.ErrCodeRetriesExhausted))
	assert.ErrorIs(t, err, last)
	assert.NotErrorIs(t, err, first)
	assert.NotErrorIs(t, err, second)
	assert.Equal(t, "node exploded", gwerrors.ClientMessage(err))

	a := endpointByURL(pool, "http://a")
	assert.Equal(t, "http://b", pool.primary().URL)
	assert.Len(t, a.Responses, 1)
	assert.Equal(t, uint64(1), a.Connections)
	assert.NotContains(t, pool.ResponseCache, "eth_blockNumber")

	persisted := store.pool("5")
	require.NotNil(t, persisted)
	assert.Equal(t, []string{"http://b", "http://a"}, urlsOf(persisted))
	transport.AssertNumberOfCalls(t, "Send", 3)
}

func TestManagerNonRetryableErrorStopsEarly(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 3}, 0,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	encodeErr := gwerrors.NewInternalError("", "failed to encode request", nil)
	transport.On("Send", mock.Anything, "http://a", mock.Anything).Return(nil, encodeErr).Once()

	clock.Advance(time.Second)
	_, err := m.Request(context.Background(), blockNumberRequest(1))
	require.Error(t, err)
	assert.True(t, gwerrors.IsChainError(err, gwerrors.ErrCodeRetriesExhausted))
	assert.ErrorIs(t, err, encodeErr)
	transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestManagerClientCancelKeepsPrimary(t *testing.T) {
	cases := map[string]func(context.Context) (context.Context, *MockTransport){
		"cancelled before dispatch": func(ctx context.Context) (context.Context, *MockTransport) {
			ctx, cancel := context.WithCancel(ctx)
			cancel()
			return ctx, new(MockTransport)
		},
		"cancelled during the upstream call": func(ctx context.Context) (context.Context, *MockTransport) {
			ctx, cancel := context.WithCancel(ctx)
			transport := new(MockTransport)
			abandon := func(context.Context, string, *jsonrpc.Request) *jsonrpc.Record {
				cancel()
				return nil
			}
			transport.On("Send", mock.Anything, "http://a", mock.Anything).
				Return(abandon, gwerrors.NewTransportError("", "http://a", "", "context canceled", context.Canceled)).Once()
			return ctx, transport
		},
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock(baseTime)
			store := newMemStore()
			ctx, transport := setup(context.Background())

			pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 3}, 0,
				map[string]int64{"http://a": 10, "http://b": 20, "http://c": 30}, "http://a", "http://b", "http://c")
			m := newTestManager(t, pool, transport, WithClock(clock.Now), WithSnapshotStore(store))

			clock.Advance(time.Second)
			resp, err := m.Request(ctx, blockNumberRequest(1))
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, context.Canceled)
			assert.False(t, gwerrors.IsChainError(err, gwerrors.ErrCodeRetriesExhausted))

			assert.Equal(t, []string{"http://a", "http://b", "http://c"}, urlsOf(pool))
			a := endpointByURL(pool, "http://a")
			assert.Equal(t, uint64(0), a.Connections)
			assert.Equal(t, uint64(0), a.ResponseCounter)

			persisted := store.pool("5")
			require.NotNil(t, persisted)
			assert.Equal(t, uint64(0), endpointByURL(persisted, "http://a").Connections)
			transport.AssertExpectations(t)
		})
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	transport := new(MockTransport)
	latency := map[string]int64{"http://a": 40, "http://b": 15, "http://c": 25}

	pool := newTestPool(PoolConfig{MaxConnections: 3, MaxResponses: 4, MaxRetries: 2}, 0,
		map[string]int64{"http://a": 10, "http://b": 20, "http://c": 30}, "http://a", "http://b", "http://c")
	m := newTestManager(t, pool, transport, WithSnapshotStore(newMemStore()))

	var calls sync.Mutex
	n := 0
	reply := func(_ context.Context, url string, req *jsonrpc.Request) *jsonrpc.Record {
		calls.Lock()
		n++
		jitter := int64(n % 7)
		calls.Unlock()
		return record(req.Method, jsonrpc.Text("0x1"), latency[url]+jitter, baseTime)
	}
	transport.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(reply, nil)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			req := jsonrpc.NewRequest(fmt.Sprintf("eth_method%d", i%5), jsonrpc.TextArray(), jsonrpc.NumericID(int64(i)))
			_, err := m.Request(context.Background(), req)
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := m.Broadcast(context.Background(), blockNumberRequest(int64(i)))
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			stats := m.Stats()
			assert.Equal(t, 3, stats.TotalEndpoints)
		}()
	}
	wg.Wait()

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Endpoints, 3)
	assert.ElementsMatch(t, []string{"http://a", "http://b", "http://c"}, urlsOf(snap))
	assert.True(t, sort.SliceIsSorted(snap.Endpoints, func(i, j int) bool {
		return snap.Endpoints[i].AvgResponseTime < snap.Endpoints[j].AvgResponseTime
	}), "endpoints not ordered by latency: %v", urlsOf(snap))

	var inflight uint64
	for _, ep := range snap.Endpoints {
		inflight += ep.Connections
	}
	assert.Zero(t, inflight)
}

func TestManagerUpstreamRPCErrorIsPassedThrough(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 1}, 0,
		map[string]int64{"http://a": 10}, "http://a")
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	reverted := &jsonrpc.Record{Method: "eth_call", Error: jsonrpc.NewError(-32000, "execution reverted"), TimeTaken: 5, StartTime: baseTime}
	transport.On("Send", mock.Anything, "http://a", methodIs("eth_call")).Return(reverted, nil).Once()

	clock.Advance(time.Second)
	resp, err := m.Request(context.Background(), jsonrpc.NewRequest("eth_call", jsonrpc.TextArray(), jsonrpc.TextID("x")))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "execution reverted", resp.Error.Message)
	assert.Equal(t, jsonrpc.TextID("x"), resp.ID)
}

func TestManagerKeepsPoolSortedAfterSuccess(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)
	rng := rand.New(rand.NewSource(42))

	urls := []string{"http://a", "http://b", "http://c", "http://d"}
	pool := newTestPool(PoolConfig{MaxConnections: 2, MaxResponses: 3, MaxRetries: 1}, 0,
		map[string]int64{"http://a": 40, "http://b": 30, "http://c": 20, "http://d": 10}, urls...)
	pool.sortByLatency()
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	for _, url := range urls {
		url := url
		transport.On("Send", mock.Anything, url, mock.Anything).Return(func(context.Context, string, *jsonrpc.Request) *jsonrpc.Record {
			return record("eth_blockNumber", jsonrpc.Text("0x1"), rng.Int63n(200), baseTime)
		}, nil)
	}

	for i := int64(0); i < 50; i++ {
		clock.Advance(time.Second)
		_, err := m.Request(context.Background(), blockNumberRequest(i))
		require.NoError(t, err)

		assert.True(t, sort.SliceIsSorted(pool.Endpoints, func(i, j int) bool {
			return pool.Endpoints[i].AvgResponseTime < pool.Endpoints[j].AvgResponseTime
		}))
		assert.ElementsMatch(t, urls, urlsOf(pool))
	}
}

func TestManagerNeverLosesEndpoints(t *testing.T) {
	clock := newFakeClock(baseTime)
	transport := new(MockTransport)

	urls := []string{"http://a", "http://b", "http://c"}
	pool := newTestPool(PoolConfig{MaxConnections: 0, MaxResponses: 0, MaxRetries: 1}, 0,
		map[string]int64{"http://a": 10, "http://b": 20, "http://c": 30}, urls...)
	m := newTestManager(t, pool, transport, WithClock(clock.Now))

	transport.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gwerrors.NewTransportError("", "", "Service Unavailable", "down", nil))

	for i := int64(0); i < 10; i++ {
		clock.Advance(time.Second)
		_, err := m.Request(context.Background(), blockNumberRequest(i))
		require.Error(t, err)
		assert.Len(t, pool.Endpoints, 3)
		assert.ElementsMatch(t, urls, urlsOf(pool))
	}
}

func TestManagerWriteBehind(t *testing.T) {
	clock := newFakeClock(baseTime)
	store := newMemStore()
	transport := new(MockTransport)

	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 1}, 0,
		map[string]int64{"http://a": 10}, "http://a")
	m := newTestManager(t, pool, transport, WithClock(clock.Now), WithSnapshotStore(store), WithWriteBehind(time.Hour))
	m.Start(context.Background())

	transport.On("Send", mock.Anything, "http://a", mock.Anything).
		Return(record("eth_blockNumber", jsonrpc.Text("0x1"), 10, baseTime), nil)

	for i := int64(0); i < 3; i++ {
		clock.Advance(time.Second)
		_, err := m.Request(context.Background(), blockNumberRequest(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, store.saveCount())

	m.Stop()
	assert.Equal(t, 1, store.saveCount())
	persisted := store.pool("5")
	require.NotNil(t, persisted)
	assert.Equal(t, uint64(3), persisted.Endpoints[0].ResponseCounter)
}

func TestManagerStatsAndSnapshot(t *testing.T) {
	pool := newTestPool(PoolConfig{MaxConnections: 5, MaxResponses: 5, MaxRetries: 1}, 10,
		map[string]int64{"http://a": 10, "http://b": 20}, "http://a", "http://b")
	pool.ResponseCache.store(ProbeMethod, pool.Endpoints[1].Responses[0])
	m := newTestManager(t, pool, new(MockTransport), WithAgreement(NewAgreementPolicy("last")))

	stats := m.Stats()
	assert.Equal(t, "5", stats.ChainID)
	assert.Equal(t, "evm", stats.ChainKind)
	assert.Equal(t, 2, stats.TotalEndpoints)
	assert.Equal(t, "http://a", stats.Primary)
	assert.Equal(t, "last", stats.Agreement)
	assert.Equal(t, []string{ProbeMethod}, stats.CachedMethods)
	require.Len(t, stats.Endpoints, 2)
	assert.Equal(t, 1, stats.Endpoints[1].Rank)
	assert.Equal(t, int64(20), stats.Endpoints[1].AvgResponseTime)
	assert.Equal(t, 1, stats.Endpoints[0].HistoryLength)
	assert.Equal(t, baseTime, stats.Endpoints[0].LastResponseAt)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, pool, snap)
	assert.NotSame(t, pool, snap)
	assert.Equal(t, "5", m.ChainID())
}
