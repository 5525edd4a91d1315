package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hakim/scanwatch/internal/logging"
	"github.com/hakim/scanwatch/internal/storage/postgres"
	"github.com/hakim/scanwatch/internal/target"
)

// EnvPrefix prefixes environment variable overrides, e.g.
// SCANWATCH_SERVER_ADDRESS overrides server.address.
const EnvPrefix = "SCANWATCH"

// Storage drivers.
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Scanner   ScannerConfig   `mapstructure:"scanner" yaml:"scanner"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Workers   WorkersConfig   `mapstructure:"workers" yaml:"workers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Scope     target.Scope    `mapstructure:"scope" yaml:"scope"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Log       logging.Config  `mapstructure:"log" yaml:"log"`

	// Source is the config file that was read, empty when running on
	// defaults.
	Source string `mapstructure:"-" yaml:"-"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address           string `mapstructure:"address" yaml:"address"`
	ReadTimeout       string `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      string `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout   string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	TrustProxyHeaders bool   `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// ScannerConfig configures the nmap executable
type ScannerConfig struct {
	Path    string `mapstructure:"path" yaml:"path"`
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// StorageConfig selects and configures the history store
type StorageConfig struct {
	Driver   string          `mapstructure:"driver" yaml:"driver"`
	Path     string          `mapstructure:"path" yaml:"path"`
	Postgres postgres.Config `mapstructure:"postgres" yaml:"postgres"`
}

// WorkersConfig sizes the background task dispatcher
type WorkersConfig struct {
	Count     int    `mapstructure:"count" yaml:"count"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
	Retention string `mapstructure:"retention" yaml:"retention"`
}

// RateLimitConfig limits requests per client over a sliding window
type RateLimitConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Requests int    `mapstructure:"requests" yaml:"requests"`
	Window   string `mapstructure:"window" yaml:"window"`
}

// NotifyConfig configures completion notifications
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// Load reads configuration layered as defaults, then the YAML file, then
// SCANWATCH_* environment variables. If path is empty it searches for
// scanwatch.yaml in the current directory, ./configs and
// ~/.config/scanwatch/, and runs on defaults when none is found.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scanwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "scanwatch"))
		}
	}

	source := ""
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		source = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address cannot be empty"))
	}
	errs = appendDurationErr(errs, "server.read_timeout", c.Server.ReadTimeout)
	errs = appendDurationErr(errs, "server.write_timeout", c.Server.WriteTimeout)
	errs = appendDurationErr(errs, "server.shutdown_timeout", c.Server.ShutdownTimeout)
	errs = appendDurationErr(errs, "scanner.timeout", c.Scanner.Timeout)

	switch c.Storage.Driver {
	case DriverBolt:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path cannot be empty for the bolt driver"))
		}
	case DriverPostgres:
		if c.Storage.Postgres.Database == "" {
			errs = append(errs, errors.New("storage.postgres.database cannot be empty"))
		}
		if c.Storage.Postgres.Host == "" {
			errs = append(errs, errors.New("storage.postgres.host cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q",
			DriverBolt, DriverPostgres, c.Storage.Driver))
	}

	if c.Workers.Count <= 0 {
		errs = append(errs, errors.New("workers.count must be positive"))
	}
	if c.Workers.QueueSize <= 0 {
		errs = append(errs, errors.New("workers.queue_size must be positive"))
	}
	errs = appendDurationErr(errs, "workers.retention", c.Workers.Retention)

	if c.RateLimit.Requests <= 0 {
		errs = append(errs, errors.New("rate_limit.requests must be positive"))
	}
	errs = appendDurationErr(errs, "rate_limit.window", c.RateLimit.Window)

	for _, cidr := range c.Scope.AllowedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("scope.allowed_cidrs: %w", err))
		}
	}

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("notify.webhook_url must be an http(s) URL, got %q", c.Notify.WebhookURL))
		}
	}

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ScanTimeout returns scanner.timeout as a duration.
func (c *Config) ScanTimeout() time.Duration {
	return mustDuration(c.Scanner.Timeout)
}

// RateLimitWindow returns rate_limit.window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return mustDuration(c.RateLimit.Window)
}

// TaskRetention returns workers.retention as a duration.
func (c *Config) TaskRetention() time.Duration {
	return mustDuration(c.Workers.Retention)
}

// ReadTimeout returns server.read_timeout as a duration.
func (c *Config) ReadTimeout() time.Duration {
	return mustDuration(c.Server.ReadTimeout)
}

// WriteTimeout returns server.write_timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return mustDuration(c.Server.WriteTimeout)
}

// ShutdownTimeout returns server.shutdown_timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout)
}

func appendDurationErr(errs []error, key, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", key, err))
	}
	if d <= 0 {
		return append(errs, fmt.Errorf("%s must be positive", key))
	}
	return errs
}

// mustDuration parses a value already checked by Validate; an invalid
// value yields zero.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
