package api

import "github.com/pushchain/push-rpc-gateway/gateway/rpcpool"

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// PoolsResponse lists every pool, ordered by chain id
type PoolsResponse struct {
	DefaultChainID string               `json:"default_chain_id"`
	Pools          []*rpcpool.PoolStats `json:"pools"`
}
