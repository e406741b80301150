package main

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/ffs/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration ffs would run with after applying the config
file, FFS_* environment variables and flags to the defaults.`,
	Args:    cobra.NoArgs,
	GroupID: "tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		return config.Encode(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
