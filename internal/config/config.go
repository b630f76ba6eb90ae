package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HALFTUNES_HTTP_BIND_ADDR
const EnvPrefix = "HALFTUNES"

// Config represents the entire application configuration
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Manager     ManagerConfig     `mapstructure:"manager"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// StorageConfig contains local storage settings
type StorageConfig struct {
	RootDir        string `mapstructure:"root_dir"`
	TempFileMaxAge string `mapstructure:"temp_file_max_age"`
}

// TransportConfig contains preview download settings
type TransportConfig struct {
	UserAgent             string `mapstructure:"user_agent"`
	ProgressInterval      string `mapstructure:"progress_interval"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	BufferSizeKB          int    `mapstructure:"buffer_size_kb"`
}

// ManagerConfig contains download manager settings
type ManagerConfig struct {
	RegistryShards int `mapstructure:"registry_shards"`
	EventShards    int `mapstructure:"event_shards"`
	EventBuffer    int `mapstructure:"event_buffer"`
}

// CatalogConfig contains search settings
type CatalogConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Country  string `mapstructure:"country"`
	Limit    int    `mapstructure:"limit"`
	Timeout  string `mapstructure:"timeout"`
	CacheTTL string `mapstructure:"cache_ttl"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings. An empty path disables
// the search cache.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MaintenanceConfig contains cleanup settings
type MaintenanceConfig struct {
	CleanupInterval string `mapstructure:"cleanup_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root_dir", "./data/previews")
	v.SetDefault("storage.temp_file_max_age", "24h")
	v.SetDefault("transport.user_agent", "HalfTunes/1.0")
	v.SetDefault("transport.progress_interval", "250ms")
	v.SetDefault("transport.response_header_timeout", "30s")
	v.SetDefault("transport.buffer_size_kb", 32)
	v.SetDefault("manager.registry_shards", 32)
	v.SetDefault("manager.event_shards", 4)
	v.SetDefault("manager.event_buffer", 64)
	v.SetDefault("catalog.base_url", "https://itunes.apple.com")
	v.SetDefault("catalog.country", "")
	v.SetDefault("catalog.limit", 50)
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("catalog.cache_ttl", "1h")
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/halftunes.db")
	v.SetDefault("maintenance.cleanup_interval", "1h")
}

// Load loads configuration from the specified file path. An empty path
// uses defaults plus environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage.root_dir is required")
	}

	u, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("catalog.base_url must be an http(s) url")
	}
	if c.Catalog.Limit < 1 || c.Catalog.Limit > 200 {
		return fmt.Errorf("catalog.limit must be between 1 and 200")
	}

	if c.Manager.RegistryShards < 1 || c.Manager.EventShards < 1 {
		return fmt.Errorf("manager shard counts must be positive")
	}
	if c.Manager.EventBuffer < 1 {
		return fmt.Errorf("manager.event_buffer must be positive")
	}
	if c.Transport.BufferSizeKB < 0 {
		return fmt.Errorf("transport.buffer_size_kb must not be negative")
	}

	durations := map[string]string{
		"storage.temp_file_max_age":         c.Storage.TempFileMaxAge,
		"transport.progress_interval":       c.Transport.ProgressInterval,
		"transport.response_header_timeout": c.Transport.ResponseHeaderTimeout,
		"catalog.timeout":                   c.Catalog.Timeout,
		"catalog.cache_ttl":                 c.Catalog.CacheTTL,
		"maintenance.cleanup_interval":      c.Maintenance.CleanupInterval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}

// GetTempFileMaxAge returns the temp file max age as time.Duration
func (c *StorageConfig) GetTempFileMaxAge() time.Duration {
	return durationOr(c.TempFileMaxAge, 24*time.Hour)
}

// GetProgressInterval returns the progress interval as time.Duration.
// "0s" is allowed and reports every chunk.
func (c *TransportConfig) GetProgressInterval() time.Duration {
	d, err := time.ParseDuration(c.ProgressInterval)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *TransportConfig) GetResponseHeaderTimeout() time.Duration {
	return durationOr(c.ResponseHeaderTimeout, 30*time.Second)
}

// GetBufferSize returns the copy buffer size in bytes
func (c *TransportConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 32 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetTimeout returns the search request timeout as time.Duration
func (c *CatalogConfig) GetTimeout() time.Duration {
	return durationOr(c.Timeout, 15*time.Second)
}

// GetCacheTTL returns how long cached searches are served.
// "0s" disables the search cache.
func (c *CatalogConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return durationOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return durationOr(c.IdleTimeout, 60*time.Second)
}

// GetCleanupInterval returns the cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return durationOr(c.CleanupInterval, time.Hour)
}
