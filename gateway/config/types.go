package config

import "fmt"

// SnapshotBackend selects where pool snapshots are persisted
type SnapshotBackend string

const (
	// SnapshotBackendFile writes one JSON document per chain
	SnapshotBackendFile SnapshotBackend = "file"

	// SnapshotBackendSQLite stores snapshots in a sqlite database
	SnapshotBackendSQLite SnapshotBackend = "sqlite"
)

// PersistMode selects when snapshots are written
type PersistMode string

const (
	// PersistModeSync writes the snapshot at every checkpoint
	PersistModeSync PersistMode = "sync"

	// PersistModeAsync keeps the latest snapshot in memory and flushes it periodically
	PersistModeAsync PersistMode = "async"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Node home directory (default: ~/.prpcg)

	// Server Config
	ServerPort     int    `json:"server_port"`      // Port for the HTTP gateway (default: 8080)
	DefaultChainID string `json:"default_chain_id"` // Chain served on POST /eth (default: lowest configured chain id)

	// Upstream Config
	RequestTimeoutSeconds int `json:"request_timeout_seconds"` // Timeout for a single upstream call (default: 10)
	ProbeTimeoutSeconds   int `json:"probe_timeout_seconds"`   // Timeout for the bootstrap chain id probes (default: 30)

	Snapshot SnapshotConfig `json:"snapshot"`

	// Per-chain pool configuration keyed by decimal chain id
	ChainConfigs map[string]ChainSpecificConfig `json:"chain_configs"`
}

// SnapshotConfig controls pool snapshot persistence
type SnapshotConfig struct {
	Backend             SnapshotBackend `json:"backend"`               // "file" or "sqlite" (default: file)
	Dir                 string          `json:"dir"`                   // Snapshot directory (default: <node_home>/snapshots)
	ReuseOnStart        bool            `json:"reuse_on_start"`        // Skip probing when a snapshot exists
	PersistMode         PersistMode     `json:"persist_mode"`          // "sync" or "async" (default: async)
	FlushIntervalMillis int             `json:"flush_interval_millis"` // Async flush interval (default: 1000)
}

// ChainSpecificConfig holds all chain-specific configuration in one place
type ChainSpecificConfig struct {
	ChainKind string   `json:"chain_kind"`         // "evm", "ethereum" or "solana"
	RPCURLs   []string `json:"rpc_urls,omitempty"` // RPC endpoints for this chain

	MaxConnections *int `json:"max_connections,omitempty"` // Rotate once the primary has more in-flight calls (default: 5)
	MaxResponses   *int `json:"max_responses,omitempty"`   // Rotate once the primary served more calls since promotion (default: 5)
	MaxRetries     *int `json:"max_retries,omitempty"`     // Attempts against the primary per call (default: 3)

	CacheTTLMicros int64    `json:"cache_ttl_micros"`          // Response cache freshness window in microseconds
	ExcludeMethods []string `json:"exclude_methods,omitempty"` // Carried for integrators, not enforced

	AgreementStrategy string `json:"agreement_strategy,omitempty"` // Broadcast agreement: "none" or "last" (default: none)
}

// GetChainConfig returns the complete configuration for a specific chain
func (c *Config) GetChainConfig(chainID string) (*ChainSpecificConfig, error) {
	if c.ChainConfigs == nil {
		return nil, fmt.Errorf("no chain configs found")
	}
	config, ok := c.ChainConfigs[chainID]
	if !ok {
		return nil, fmt.Errorf("no config found for chain %s", chainID)
	}
	return &config, nil
}
