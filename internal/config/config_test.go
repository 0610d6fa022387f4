package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
cache:
  dir: /var/cache/gdelt
  default_ttl: 2h
  master_list_ttl: 30m
downloader:
  max_concurrent: 20
  max_retries: 5
  request_timeout: 90s
fallback:
  enabled: true
  query_budget_bytes: 1073741824
logging:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.Dir != "/var/cache/gdelt" {
		t.Errorf("Cache.Dir = %q", cfg.Cache.Dir)
	}
	if cfg.Cache.DefaultTTL != 2*time.Hour {
		t.Errorf("Cache.DefaultTTL = %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Downloader.MaxConcurrent != 20 {
		t.Errorf("Downloader.MaxConcurrent = %d", cfg.Downloader.MaxConcurrent)
	}
	if !cfg.Fallback.Enabled {
		t.Error("Fallback.Enabled = false, want true")
	}
	if cfg.Fallback.QueryBudgetBytes != 1073741824 {
		t.Errorf("Fallback.QueryBudgetBytes = %d", cfg.Fallback.QueryBudgetBytes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("GDELT_CACHE_DIR", "/data/gdelt")

	path := writeConfig(t, `
cache:
  dir: ${GDELT_CACHE_DIR}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Dir != "/data/gdelt" {
		t.Errorf("Cache.Dir = %q, want the expanded env value", cfg.Cache.Dir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "cache: [not: a: mapping")
	if _, err := Load(path); err == nil {
		t.Error("Load of invalid YAML should fail")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeConfig(t, `
cache:
  dir: /var/cache/gdelt
`)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Cache.DefaultTTL != DefaultTTL {
		t.Errorf("Cache.DefaultTTL = %v, want default %v", cfg.Cache.DefaultTTL, DefaultTTL)
	}
	if cfg.Cache.MasterListTTL != DefaultMasterListTTL {
		t.Errorf("Cache.MasterListTTL = %v, want default %v", cfg.Cache.MasterListTTL, DefaultMasterListTTL)
	}
	if cfg.Downloader.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("Downloader.MaxConcurrent = %d, want default %d", cfg.Downloader.MaxConcurrent, DefaultMaxConcurrent)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLogLevel)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Cache.Dir = "/var/cache/gdelt"
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }, true},
		{"negative default ttl", func(c *Config) { c.Cache.DefaultTTL = -time.Hour }, true},
		{"zero master list ttl", func(c *Config) { c.Cache.MasterListTTL = 0 }, true},
		{"zero max concurrent", func(c *Config) { c.Downloader.MaxConcurrent = 0 }, true},
		{"zero max retries", func(c *Config) { c.Downloader.MaxRetries = 0 }, true},
		{"negative budget", func(c *Config) { c.Fallback.QueryBudgetBytes = -1 }, true},
		{"metrics port out of range", func(c *Config) { c.Metrics.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}
