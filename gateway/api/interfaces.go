package api

import (
	"context"

	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
	"github.com/pushchain/push-rpc-gateway/gateway/rpcpool"
)

// PoolManager is the per-chain surface the server dispatches to
type PoolManager interface {
	ChainID() string
	Request(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
	Broadcast(ctx context.Context, req *jsonrpc.Request) (*rpcpool.BroadcastResult, error)
	Stats() *rpcpool.PoolStats
}

// PoolRegistry resolves chain ids to their managers
type PoolRegistry interface {
	Manager(chainID string) (PoolManager, bool)
	Managers() []PoolManager
	DefaultChainID() string
}
