package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-rpc-gateway/gateway/config"
	"github.com/pushchain/push-rpc-gateway/gateway/core"
	"github.com/pushchain/push-rpc-gateway/gateway/logger"
)

const (
	flagPort           = "port"
	flagLogLevel       = "log-level"
	flagLogFormat      = "log-format"
	flagRPCs           = "rpcs"
	flagChain          = "chain"
	flagChainType      = "chain-type"
	flagMaxConnections = "max-connections"
	flagMaxResponses   = "max-responses"
	flagMaxRetries     = "max-retries"
	flagCacheClear     = "cache-clear"
	flagExcludeMethods = "exclude-methods"
	flagUseCached      = "use-cached"
	flagWithPublic     = "with-public-providers"
)

func InitRootCmd(rootCmd *cobra.Command, v *viper.Viper) {
	rootCmd.AddCommand(initCmd(v))
	rootCmd.AddCommand(startCmd(v))
	rootCmd.AddCommand(customCmd(v))
	rootCmd.AddCommand(publicCmd(v))
	rootCmd.AddCommand(versionCmd())
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().Int(flagPort, 0, "HTTP listen port (default from config, 8080)")
	cmd.Flags().Int(flagLogLevel, 1, "log level, 0 = debug through 5 = panic")
	cmd.Flags().String(flagLogFormat, "console", "log format: json or console")
	cmd.Flags().Bool(flagUseCached, false, "reuse pool snapshots instead of probing endpoints")
}

func initCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config to <home>/config/prpcg_config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := v.GetString(flagHome)
			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = home
			if err := config.Save(cfg, home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", home)
			return nil
		},
	}
}

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve every chain in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v.GetString(flagHome))
			if err != nil {
				return err
			}
			applyOverrides(v, &cfg)
			return run(cmd.Context(), &cfg)
		},
	}
	addServerFlags(cmd)
	return cmd
}

func customCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custom",
		Short: "Serve one chain from the given RPC endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := customConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringSliceP(flagRPCs, "r", nil, "upstream RPC URLs, ranked in order")
	cmd.Flags().StringP(flagChain, "c", "", "decimal chain id")
	cmd.Flags().StringP(flagChainType, "t", "evm", "chain kind: evm, ethereum or solana")
	cmd.Flags().IntP(flagMaxConnections, "m", config.DefaultMaxConnections, "in-flight calls on the primary before it is rotated")
	cmd.Flags().IntP(flagMaxResponses, "x", config.DefaultMaxResponses, "calls served by the primary before it is rotated")
	cmd.Flags().IntP(flagMaxRetries, "i", config.DefaultMaxRetries, "attempts per call against the primary")
	cmd.Flags().Int64P(flagCacheClear, "a", 0, "response cache ttl in microseconds")
	cmd.Flags().StringSliceP(flagExcludeMethods, "e", nil, "methods excluded from caching (recorded only)")
	addServerFlags(cmd)
	return cmd
}

func publicCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "public",
		Short: "Serve the built-in public provider presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !v.GetBool(flagWithPublic) {
				return fmt.Errorf("nothing to serve: pass --%s", flagWithPublic)
			}
			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = v.GetString(flagHome)
			serverSettings(v, cfg)
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolP(flagWithPublic, "p", true, "bootstrap pools from the public provider presets")
	addServerFlags(cmd)
	return cmd
}

// customConfig builds a single-chain config from flags and PRPCG_* env
func customConfig(v *viper.Viper) (*config.Config, error) {
	chainID := v.GetString(flagChain)
	if chainID == "" {
		return nil, fmt.Errorf("--%s is required", flagChain)
	}
	rpcs := listValue(v, flagRPCs)
	if len(rpcs) == 0 {
		return nil, fmt.Errorf("--%s requires at least one url", flagRPCs)
	}

	maxConnections := v.GetInt(flagMaxConnections)
	maxResponses := v.GetInt(flagMaxResponses)
	maxRetries := v.GetInt(flagMaxRetries)

	cfg := &config.Config{
		NodeHome: v.GetString(flagHome),
		ChainConfigs: map[string]config.ChainSpecificConfig{
			chainID: {
				ChainKind:      v.GetString(flagChainType),
				RPCURLs:        rpcs,
				MaxConnections: &maxConnections,
				MaxResponses:   &maxResponses,
				MaxRetries:     &maxRetries,
				CacheTTLMicros: v.GetInt64(flagCacheClear),
				ExcludeMethods: listValue(v, flagExcludeMethods),
			},
		},
		DefaultChainID: chainID,
	}
	serverSettings(v, cfg)
	return cfg, config.Validate(cfg)
}

// applyOverrides copies explicitly set server flags or env values onto cfg
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet(flagPort) {
		cfg.ServerPort = v.GetInt(flagPort)
	}
	if v.IsSet(flagLogLevel) {
		cfg.LogLevel = v.GetInt(flagLogLevel)
	}
	if v.IsSet(flagLogFormat) {
		cfg.LogFormat = v.GetString(flagLogFormat)
	}
	if v.IsSet(flagUseCached) {
		cfg.Snapshot.ReuseOnStart = v.GetBool(flagUseCached)
	}
}

// serverSettings fills the server fields of a config that has no file behind it
func serverSettings(v *viper.Viper, cfg *config.Config) {
	cfg.ServerPort = v.GetInt(flagPort)
	cfg.LogLevel = v.GetInt(flagLogLevel)
	cfg.LogFormat = v.GetString(flagLogFormat)
	cfg.Snapshot.ReuseOnStart = v.GetBool(flagUseCached)
}

// listValue accepts repeated flags as well as a comma separated env value
func listValue(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range cast.ToStringSlice(v.Get(key)) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.Init(*cfg)

	gw, err := core.New(cfg, log)
	if err != nil {
		return err
	}

	log.Info().
		Int("port", cfg.ServerPort).
		Str("home", cfg.NodeHome).
		Msg("🚀 Starting push rpc gateway...")

	if err := gw.Start(ctx); err != nil {
		_ = gw.Stop()
		return err
	}

	log.Info().Msg("✅ Initialization complete. Serving requests...")
	<-ctx.Done()

	log.Info().Msg("🛑 Shutting down push rpc gateway...")
	return stopGateway(gw, log)
}

func stopGateway(gw *core.Gateway, log zerolog.Logger) error {
	if err := gw.Stop(); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
		return err
	}
	return nil
}
