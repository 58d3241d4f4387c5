package api

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
	"github.com/pushchain/push-rpc-gateway/gateway/rpcpool"
)

// MockManager is a mock implementation of PoolManager
type MockManager struct {
	mock.Mock
	chainID string
}

func (m *MockManager) ChainID() string {
	return m.chainID
}

func (m *MockManager) Request(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*jsonrpc.Response)
	return resp, args.Error(1)
}

func (m *MockManager) Broadcast(ctx context.Context, req *jsonrpc.Request) (*rpcpool.BroadcastResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*rpcpool.BroadcastResult)
	return res, args.Error(1)
}

func (m *MockManager) Stats() *rpcpool.PoolStats {
	return &rpcpool.PoolStats{ChainID: m.chainID, ChainKind: "evm", TotalEndpoints: 1}
}

type staticRegistry struct {
	managers map[string]*MockManager
	def      string
}

func (r *staticRegistry) Manager(chainID string) (PoolManager, bool) {
	m, ok := r.managers[chainID]
	if !ok {
		return nil, false
	}
	return m, true
}

func (r *staticRegistry) Managers() []PoolManager {
	out := make([]PoolManager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	return out
}

func (r *staticRegistry) DefaultChainID() string {
	return r.def
}

func newTestServer(t *testing.T, chainIDs ...string) (*Server, *staticRegistry) {
	t.Helper()
	reg := &staticRegistry{managers: make(map[string]*MockManager)}
	for _, id := range chainIDs {
		reg.managers[id] = &MockManager{chainID: id}
	}
	if len(chainIDs) > 0 {
		reg.def = chainIDs[0]
	}
	return NewServer(zerolog.New(zerolog.NewTestWriter(t)), 0, reg, nil), reg
}

func methodIs(method string) interface{} {
	return mock.MatchedBy(func(req *jsonrpc.Request) bool {
		return req.Method == method
	})
}
