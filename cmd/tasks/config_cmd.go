package main

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration.

Settings come from ~/.config/tasksync/config.toml, then tasksync.toml in the
current directory, then the TASKSYNC_SERVER, TASKSYNC_TOKEN and
TASKSYNC_STATE_DIR environment variables. Defaults are filled in.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stateDir, err := cfg.StateDir()
	if err != nil {
		return err
	}

	effective := *cfg
	effective.Server.URL = cfg.ServerURL()
	if effective.Server.Token != "" {
		effective.Server.Token = "********"
	}
	effective.Sync.Storage = cfg.StorageKind()
	effective.Sync.StateDir = stateDir
	return toml.NewEncoder(cmd.OutOrStdout()).Encode(effective)
}
