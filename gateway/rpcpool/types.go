package rpcpool

import (
	"fmt"
	"time"
)

// ChainKind tags the family of the chain a pool serves
type ChainKind string

const (
	ChainKindEVM      ChainKind = "evm"
	ChainKindEthereum ChainKind = "ethereum"
	ChainKindSolana   ChainKind = "solana"
)

// ParseChainKind validates a chain kind name
func ParseChainKind(s string) (ChainKind, error) {
	switch kind := ChainKind(s); kind {
	case ChainKindEVM, ChainKindEthereum, ChainKindSolana:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown chain kind %q", s)
	}
}

// ChainDescriptor identifies the chain a pool serves. ID is the decimal chain id.
type ChainDescriptor struct {
	Kind ChainKind `json:"kind"`
	ID   string    `json:"id"`
}

// PoolConfig holds the rotation and retry limits of a pool
type PoolConfig struct {
	MaxConnections uint64 `json:"max_connections"`
	MaxResponses   uint64 `json:"max_responses"`
	MaxRetries     uint64 `json:"max_retries"`
}

// CacheOptions configures the per-method response cache. TTL is in microseconds.
type CacheOptions struct {
	TTL            int64    `json:"ttl"`
	ExcludeMethods []string `json:"exclude_methods"`
}

// PoolStats represents the state of a pool for diagnostics
type PoolStats struct {
	ChainID        string         `json:"chain_id"`
	ChainKind      string         `json:"chain_kind"`
	TotalEndpoints int            `json:"total_endpoints"`
	Primary        string         `json:"primary"`
	CachedMethods  []string       `json:"cached_methods"`
	Agreement      string         `json:"agreement"`
	Config         PoolConfig     `json:"config"`
	Cache          CacheOptions   `json:"cache"`
	Endpoints      []EndpointInfo `json:"endpoints"`
}

// EndpointInfo represents information about a single endpoint
type EndpointInfo struct {
	URL             string    `json:"url"`
	Rank            int       `json:"rank"`
	AvgResponseTime int64     `json:"avg_response_time_ms"`
	Connections     uint64    `json:"connections"`
	ResponseCounter uint64    `json:"response_counter"`
	HistoryLength   int       `json:"history_length"`
	LastResponseAt  time.Time `json:"last_response_at"`
}
