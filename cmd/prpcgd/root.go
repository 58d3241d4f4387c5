package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pushchain/push-rpc-gateway/gateway/config"
)

const envPrefix = "PRPCG"

const flagHome = "home"

func NewRootCmd() *cobra.Command {
	v := newViper()

	rootCmd := &cobra.Command{
		Use:           "prpcgd",
		Short:         "Push RPC Gateway Daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags())
		},
	}
	rootCmd.PersistentFlags().String(flagHome, config.DefaultNodeHome, "node home directory")

	InitRootCmd(rootCmd, v) // add subcommands like `start` and `version`

	return rootCmd
}

// newViper reads PRPCG_* environment overrides, e.g. PRPCG_MAX_RETRIES
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags binds the flags of the executing command only, so commands that
// share a flag name never shadow each other
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(f.Name, f)
		}
	})
	return err
}
