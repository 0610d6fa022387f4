package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for optional configuration fields.
const (
	DefaultCacheDir       = "gdelt-cache"
	DefaultTTL            = time.Hour
	DefaultMasterListTTL  = 15 * time.Minute
	DefaultMaxConcurrent  = 10
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 60 * time.Second
	DefaultLogLevel       = "info"
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

// Default returns a validated configuration built entirely from
// defaults, for callers running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = DefaultTTL
	}
	if c.Cache.MasterListTTL == 0 {
		c.Cache.MasterListTTL = DefaultMasterListTTL
	}

	if c.Downloader.MaxConcurrent == 0 {
		c.Downloader.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Downloader.MaxRetries == 0 {
		c.Downloader.MaxRetries = DefaultMaxRetries
	}
	if c.Downloader.RequestTimeout == 0 {
		c.Downloader.RequestTimeout = DefaultRequestTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return errors.New("cache.dir is required")
	}
	if c.Cache.DefaultTTL < 0 {
		return errors.New("cache.default_ttl must be >= 0")
	}
	if c.Cache.MasterListTTL <= 0 {
		return errors.New("cache.master_list_ttl must be > 0")
	}

	if c.Downloader.MaxConcurrent < 1 {
		return errors.New("downloader.max_concurrent must be >= 1")
	}
	if c.Downloader.MaxRetries < 1 {
		return errors.New("downloader.max_retries must be >= 1")
	}
	if c.Downloader.RequestTimeout <= 0 {
		return errors.New("downloader.request_timeout must be > 0")
	}

	if c.Fallback.QueryBudgetBytes < 0 {
		return errors.New("fallback.query_budget_bytes must be >= 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
