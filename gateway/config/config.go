package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
)

const (
	NodeDir = ".prpcg"

	configSubdir   = "config"
	configFileName = "prpcg_config.json"

	SnapshotsSubdir = "snapshots"
	DatabaseFile    = "snapshots.db"
)

// DefaultNodeHome is ~/.prpcg
var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

const (
	DefaultMaxConnections = 5
	DefaultMaxResponses   = 5
	DefaultMaxRetries     = 3
)

var validChainKinds = map[string]bool{"evm": true, "ethereum": true, "solana": true}

var validAgreementStrategies = map[string]bool{"": true, "none": true, "last": true}

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	if cfg.NodeHome == "" {
		cfg.NodeHome = DefaultNodeHome
	}

	// Set defaults for server config
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8080
	}
	if cfg.ServerPort < 0 || cfg.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	// Set defaults for upstream config
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 10
	}
	if cfg.ProbeTimeoutSeconds == 0 {
		cfg.ProbeTimeoutSeconds = 30
	}

	// Set defaults for snapshot config
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = SnapshotBackendFile
	}
	if cfg.Snapshot.Backend != SnapshotBackendFile && cfg.Snapshot.Backend != SnapshotBackendSQLite {
		return fmt.Errorf("snapshot backend must be 'file' or 'sqlite'")
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = filepath.Join(cfg.NodeHome, SnapshotsSubdir)
	}
	if cfg.Snapshot.PersistMode == "" {
		cfg.Snapshot.PersistMode = PersistModeAsync
	}
	if cfg.Snapshot.PersistMode != PersistModeSync && cfg.Snapshot.PersistMode != PersistModeAsync {
		return fmt.Errorf("persist mode must be 'sync' or 'async'")
	}
	if cfg.Snapshot.FlushIntervalMillis == 0 {
		cfg.Snapshot.FlushIntervalMillis = 1000
	}

	// Initialize ChainConfigs if nil or empty
	if len(cfg.ChainConfigs) == 0 {
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			cfg.ChainConfigs = defaultCfg.ChainConfigs
		} else {
			cfg.ChainConfigs = make(map[string]ChainSpecificConfig)
		}
	}

	for chainID, chainCfg := range cfg.ChainConfigs {
		if err := validateChainConfig(chainID, &chainCfg); err != nil {
			return err
		}
		cfg.ChainConfigs[chainID] = chainCfg
	}

	if cfg.DefaultChainID == "" {
		cfg.DefaultChainID = lowestChainID(cfg.ChainConfigs)
	}
	if _, ok := cfg.ChainConfigs[cfg.DefaultChainID]; cfg.DefaultChainID != "" && !ok {
		return fmt.Errorf("default chain %s is not configured", cfg.DefaultChainID)
	}

	return nil
}

func validateChainConfig(chainID string, cfg *ChainSpecificConfig) error {
	if _, ok := new(big.Int).SetString(chainID, 10); !ok {
		return fmt.Errorf("chain id %q must be a decimal number", chainID)
	}
	if len(cfg.RPCURLs) == 0 {
		return fmt.Errorf("chain %s: at least one rpc url is required", chainID)
	}

	if cfg.ChainKind == "" {
		cfg.ChainKind = "evm"
	}
	if !validChainKinds[cfg.ChainKind] {
		return fmt.Errorf("chain %s: chain kind must be 'evm', 'ethereum' or 'solana'", chainID)
	}

	if cfg.MaxConnections == nil {
		v := DefaultMaxConnections
		cfg.MaxConnections = &v
	}
	if cfg.MaxResponses == nil {
		v := DefaultMaxResponses
		cfg.MaxResponses = &v
	}
	if cfg.MaxRetries == nil || *cfg.MaxRetries == 0 {
		v := DefaultMaxRetries
		cfg.MaxRetries = &v
	}
	if *cfg.MaxConnections < 0 || *cfg.MaxResponses < 0 || *cfg.MaxRetries < 0 {
		return fmt.Errorf("chain %s: pool limits must not be negative", chainID)
	}

	if cfg.CacheTTLMicros < 0 {
		return fmt.Errorf("chain %s: cache ttl must not be negative", chainID)
	}

	if !validAgreementStrategies[cfg.AgreementStrategy] {
		return fmt.Errorf("chain %s: agreement strategy must be 'none' or 'last'", chainID)
	}
	return nil
}

func lowestChainID(chains map[string]ChainSpecificConfig) string {
	ids := make([]string, 0, len(chains))
	for id := range chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := new(big.Int).SetString(ids[i], 10)
		b, _ := new(big.Int).SetString(ids[j], 10)
		if a == nil || b == nil {
			return ids[i] < ids[j]
		}
		return a.Cmp(b) < 0
	})
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Validate applies defaults and checks the config in place
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <NodeDir>/config/prpcg_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, configFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads, validates and returns the config from <BasePath>/config/prpcg_config.json.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, configSubdir, configFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
