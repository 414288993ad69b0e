package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stockmaster/stocksync/internal/config"
	"github.com/stockmaster/stocksync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write the current configuration to a file",
	Long: `Write the resolved configuration (defaults, environment and flags) to a
TOML file. The default location is the per-user config directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := filepath.Join(config.DefaultDir(), config.FileName+".toml")
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteFile(path, cfg, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		source := ui.RenderMuted("(defaults and environment only)")
		if cfg.File != "" {
			source = cfg.File
		}
		fmt.Printf("Config file: %s\n\n", source)

		logFile := cfg.Log.File
		if logFile == "" {
			logFile = "stderr"
		}
		rows := [][]string{
			{config.KeyServerURL, cfg.Server.URL},
			{config.KeyHTTPTimeout, cfg.Server.Timeout.String()},
			{config.KeyStoreBackend, cfg.Store.Backend},
			{config.KeyStorePath, cfg.Store.Path},
			{config.KeyAutoSync, cfg.Sync.AutoInterval.String()},
			{config.KeyDebounce, cfg.Sync.Debounce.String()},
			{config.KeyPollInterval, cfg.Connectivity.PollInterval.String()},
			{config.KeyProbeTimeout, cfg.Connectivity.ProbeTimeout.String()},
			{config.KeyReconnectEvery, cfg.Connectivity.ReconnectEvery.String()},
			{config.KeyDashboardAddr, cfg.Dashboard.Addr},
			{config.KeyLogFile, logFile},
		}
		fmt.Print(ui.Table([]string{"KEY", "VALUE"}, rows))
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
