package cmd

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/config"
)

var configInitTap string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default tapctl.toml",
	Long: `Generate a default tapctl.toml configuration file.

Example tapctl.toml:

  tap = "~/src/homebrew-tap"
  allow_unverified = false
  fetch_timeout = "10m0s"
  jobs = 1
  keep_downloads = false

  [log]
  level = "info"
  format = "text"

  [s3]
  region = "us-east-1"
  use_path_style = false

Environment variables (TAPCTL_TAP_DIR, TAPCTL_JOBS, TAPCTL_LOG_LEVEL, ...)
take precedence over the file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration and directories",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().StringVar(&configInitTap, "tap", "", "Tap directory to record in the config")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}

	configPath := paths.ConfigPath()

	// Check if already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		fmt.Println("Edit it directly or delete to regenerate.")
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Tap = configInitTap
	if err := cfg.Save(paths.ConfigDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Created: %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	fmt.Printf("# %s\n", e.paths.ConfigPath())
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	fmt.Println("# directories")
	fmt.Printf("tap      = %s\n", e.paths.TapDir)
	fmt.Printf("bin      = %s\n", e.paths.BinDir)
	fmt.Printf("apps     = %s\n", e.paths.AppDir)
	fmt.Printf("data     = %s\n", e.paths.DataDir)
	fmt.Printf("cache    = %s\n", e.paths.CacheDir)
	fmt.Printf("receipts = %s\n", e.paths.ReceiptsPath())
	return nil
}
