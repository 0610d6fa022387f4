// Package config loads and validates the acquisition-layer configuration
// from YAML, with ${VAR} environment expansion.
package config

import "time"

// Config is the root configuration for the acquisition layer.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"`
	Downloader DownloaderConfig `yaml:"downloader"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CacheConfig holds the on-disk cache settings.
type CacheConfig struct {
	Dir string `yaml:"dir"`

	// DefaultTTL applies to entries without a historical exemption.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MasterListTTL applies to the master file list. Listing-type keys
	// always need an explicit TTL; there is no key-shape heuristic.
	MasterListTTL time.Duration `yaml:"master_list_ttl"`
}

// DownloaderConfig holds bulk download settings.
type DownloaderConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// FallbackConfig holds secondary-source settings.
type FallbackConfig struct {
	// Enabled turns on transparent fallback to the query-engine source.
	Enabled bool `yaml:"enabled"`

	// QueryBudgetBytes caps cumulative billed bytes across queries.
	QueryBudgetBytes int64 `yaml:"query_budget_bytes"`

	// RedisAddr, when set, shares the budget across processes.
	RedisAddr string `yaml:"redis_addr"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
