package rpcpool

import (
	"context"

	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

// Transport performs one JSON-RPC exchange with an upstream node.
// Implementations return a transport error for non-success statuses and a
// decode error for payloads that cannot be read.
type Transport interface {
	Send(ctx context.Context, url string, req *jsonrpc.Request) (*jsonrpc.Record, error)
}

// SnapshotStore persists pool snapshots keyed by chain id.
// Load returns nil data and a nil error when no snapshot exists.
type SnapshotStore interface {
	Load(ctx context.Context, chainID string) ([]byte, error)
	Save(ctx context.Context, chainID string, data []byte) error
}

// AgreementPolicy picks a single answer out of a broadcast result set.
// It returns nil when it declines to decide.
type AgreementPolicy interface {
	Name() string
	Decide(results []EndpointResult) *EndpointResult
}
