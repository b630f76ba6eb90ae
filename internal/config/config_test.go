package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data/previews", cfg.Storage.RootDir)
	assert.Equal(t, "https://itunes.apple.com", cfg.Catalog.BaseURL)
	assert.Equal(t, 50, cfg.Catalog.Limit)
	assert.Equal(t, 32, cfg.Manager.RegistryShards)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, time.Hour, cfg.Catalog.GetCacheTTL())
	assert.Equal(t, 250*time.Millisecond, cfg.Transport.GetProgressInterval())
	assert.Equal(t, 32*1024, cfg.Transport.GetBufferSize())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  root_dir: /tmp/previews
catalog:
  limit: 25
  cache_ttl: 0s
logging:
  level: debug
  format: text
http:
  bind_addr: 0.0.0.0:9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("HALFTUNES_HTTP_BIND_ADDR", "127.0.0.1:9999")
	t.Setenv("HALFTUNES_MANAGER_EVENT_SHARDS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/previews", cfg.Storage.RootDir)
	assert.Equal(t, 25, cfg.Catalog.Limit)
	assert.Equal(t, time.Duration(0), cfg.Catalog.GetCacheTTL())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.BindAddr, "env overrides file")
	assert.Equal(t, 8, cfg.Manager.EventShards)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage:   StorageConfig{RootDir: "/data"},
			Catalog:   CatalogConfig{BaseURL: "https://itunes.apple.com", Limit: 50, CacheTTL: "1h"},
			Manager:   ManagerConfig{RegistryShards: 4, EventShards: 2, EventBuffer: 8},
			Transport: TransportConfig{ProgressInterval: "100ms"},
			Logging:   LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing root", func(c *Config) { c.Storage.RootDir = "" }, true},
		{"bad base url", func(c *Config) { c.Catalog.BaseURL = "itunes" }, true},
		{"limit too high", func(c *Config) { c.Catalog.Limit = 500 }, true},
		{"zero shards", func(c *Config) { c.Manager.EventShards = 0 }, true},
		{"bad duration", func(c *Config) { c.Catalog.CacheTTL = "soon" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	h := HTTPConfig{ReadTimeout: "5s"}
	if got := h.GetReadTimeout(); got != 5*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 5s", got)
	}
	if got := h.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() fallback = %v, want 30s", got)
	}

	tr := TransportConfig{ProgressInterval: "0s"}
	if got := tr.GetProgressInterval(); got != 0 {
		t.Errorf("GetProgressInterval() = %v, want 0", got)
	}

	m := MaintenanceConfig{CleanupInterval: "garbage"}
	if got := m.GetCleanupInterval(); got != time.Hour {
		t.Errorf("GetCleanupInterval() fallback = %v, want 1h", got)
	}
}
