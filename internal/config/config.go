// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BatchConfig governs the CSV batch pipeline.
type BatchConfig struct {
	Concurrency  int `mapstructure:"concurrency"`
	SampleRows   int `mapstructure:"sample_rows"`
	StreamBuffer int `mapstructure:"stream_buffer"`
}

// DiscoveryConfig governs per-site email crawls.
type DiscoveryConfig struct {
	MaxPages             int     `mapstructure:"max_pages"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	UserAgent            string  `mapstructure:"user_agent"`
	RatePerDomain        float64 `mapstructure:"rate_per_domain"`
	RenderEnabled        bool    `mapstructure:"render_enabled"`
	RenderMaxParallel    int     `mapstructure:"render_max_parallel"`
	RenderTimeoutSeconds int     `mapstructure:"render_timeout_seconds"`
}

// LedgerConfig selects the credit ledger backend.
type LedgerConfig struct {
	Provider  string  `mapstructure:"provider"`
	DSN       string  `mapstructure:"dsn"`
	BatchCost float64 `mapstructure:"batch_cost"`
	URLCost   float64 `mapstructure:"url_cost"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EMAILFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 100)
	v.SetDefault("batch.sample_rows", 5)
	v.SetDefault("batch.stream_buffer", 64)
	v.SetDefault("discovery.max_pages", 10)
	v.SetDefault("discovery.timeout_seconds", 10)
	v.SetDefault("discovery.user_agent", "emailfinder-bot/0.1")
	v.SetDefault("discovery.rate_per_domain", 1.0)
	v.SetDefault("discovery.render_enabled", false)
	v.SetDefault("discovery.render_max_parallel", 2)
	v.SetDefault("discovery.render_timeout_seconds", 25)
	v.SetDefault("ledger.provider", "noop")
	v.SetDefault("ledger.batch_cost", 0.05)
	v.SetDefault("ledger.url_cost", 0.01)
	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.prefix", "results")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0")
	}
	if c.Discovery.MaxPages <= 0 {
		return fmt.Errorf("discovery.max_pages must be > 0")
	}
	if c.Discovery.TimeoutSeconds <= 0 {
		return fmt.Errorf("discovery.timeout_seconds must be > 0")
	}
	if c.Discovery.RenderEnabled && c.Discovery.RenderMaxParallel <= 0 {
		return fmt.Errorf("discovery.render_max_parallel must be > 0 when rendering is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Ledger.Provider {
	case "noop", "memory":
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn must be set when ledger.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown ledger.provider %q", c.Ledger.Provider)
	}
	switch c.Storage.Provider {
	case "noop", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	return nil
}

// DiscoveryTimeout converts the configured seconds into a duration.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// RenderTimeout converts the configured seconds into a duration.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Discovery.RenderTimeoutSeconds) * time.Second
}
