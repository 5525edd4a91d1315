package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hakim/scanwatch/internal/logging"
	"github.com/hakim/scanwatch/internal/storage/postgres"
)

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:8000",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "30s",
		},
		Scanner: ScannerConfig{
			Path:    "nmap",
			Timeout: "5m",
		},
		Storage: StorageConfig{
			Driver: DriverBolt,
			Path:   "scanwatch.db",
			Postgres: postgres.Config{
				Host:            "localhost",
				Port:            5432,
				Database:        "scanwatch",
				Username:        "scanwatch",
				SSLMode:         "disable",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Workers: WorkersConfig{
			Count:     2,
			QueueSize: 100,
			Retention: "1h",
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 5,
			Window:   "1m",
		},
		Log: logging.DefaultConfig(),
	}
}

// WriteDefault writes a default configuration to the specified path
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
