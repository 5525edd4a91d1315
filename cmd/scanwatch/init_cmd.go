package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hakim/scanwatch/internal/config"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Creates a default configuration file (scanwatch.yaml) with every setting
spelled out: listen address, nmap path and timeout, storage backend, worker
pool, rate limiting, scope rules, notifications, and logging.

Every setting can also be overridden with a SCANWATCH_* environment variable,
for example SCANWATCH_SERVER_ADDRESS=0.0.0.0:8000.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(initDir, "scanwatch.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}

		if err := os.MkdirAll(initDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", initDir, err)
		}
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("Created %s with default configuration\n", configPath)

		// Round-trip the file so a broken default is caught here, not at serve time
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("default config is invalid: %w", err)
		}

		fmt.Println("\nNext steps:")
		fmt.Println("  scanwatch check             verify nmap is installed")
		fmt.Println("  scanwatch scan -t <target>  run a scan in the foreground")
		fmt.Println("  scanwatch serve             start the API server")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write the config file in")
	rootCmd.AddCommand(initCmd)
}
