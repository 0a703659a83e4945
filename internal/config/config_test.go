package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 100, cfg.Batch.Concurrency)
	require.Equal(t, 5, cfg.Batch.SampleRows)
	require.Equal(t, 10, cfg.Discovery.MaxPages)
	require.Equal(t, 10, cfg.Discovery.TimeoutSeconds)
	require.Equal(t, 1.0, cfg.Discovery.RatePerDomain)
	require.False(t, cfg.Discovery.RenderEnabled)
	require.Equal(t, "noop", cfg.Ledger.Provider)
	require.Equal(t, "noop", cfg.Storage.Provider)
	require.Equal(t, "results", cfg.Storage.Prefix)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
batch:
  concurrency: 8
ledger:
  provider: memory
  batch_cost: 0.25
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 8, cfg.Batch.Concurrency)
	require.Equal(t, "memory", cfg.Ledger.Provider)
	require.Equal(t, 0.25, cfg.Ledger.BatchCost)
	// Untouched keys keep their defaults.
	require.Equal(t, 10, cfg.Discovery.MaxPages)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8080},
			Batch:     BatchConfig{Concurrency: 4},
			Discovery: DiscoveryConfig{MaxPages: 10, TimeoutSeconds: 10},
			Ledger:    LedgerConfig{Provider: "noop"},
			Storage:   StorageConfig{Provider: "noop"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad concurrency", func(c *Config) { c.Batch.Concurrency = 0 }, "batch.concurrency"},
		{"bad max pages", func(c *Config) { c.Discovery.MaxPages = 0 }, "discovery.max_pages"},
		{"bad timeout", func(c *Config) { c.Discovery.TimeoutSeconds = -1 }, "discovery.timeout_seconds"},
		{"render without parallel", func(c *Config) {
			c.Discovery.RenderEnabled = true
			c.Discovery.RenderMaxParallel = 0
		}, "render_max_parallel"},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"postgres without dsn", func(c *Config) { c.Ledger.Provider = "postgres" }, "ledger.dsn"},
		{"unknown ledger", func(c *Config) { c.Ledger.Provider = "redis" }, "ledger.provider"},
		{"local without dir", func(c *Config) { c.Storage.Provider = "local" }, "storage.local_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs" }, "storage.gcs_bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
