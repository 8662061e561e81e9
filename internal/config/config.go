package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the daemon configuration, read from config.toml in the
// data directory with AVICRM_* environment overrides applied on top.
type Config struct {
	DataDir         string `toml:"data_dir" envconfig:"DATA_DIR"`
	ListenAddr      string `toml:"listen_addr" envconfig:"LISTEN_ADDR"`
	SyncIntervalSec int    `toml:"sync_interval_sec" envconfig:"SYNC_INTERVAL_SEC"`
	PageSize        int    `toml:"page_size" envconfig:"PAGE_SIZE"`

	Market Market `toml:"market"`
}

// Market holds marketplace API client settings.
type Market struct {
	BaseURL           string  `toml:"base_url" envconfig:"MARKET_BASE_URL"`
	TokenURL          string  `toml:"token_url" envconfig:"MARKET_TOKEN_URL"`
	PublicOrigin      string  `toml:"public_origin" envconfig:"MARKET_PUBLIC_ORIGIN"`
	RequestTimeoutSec int     `toml:"request_timeout_sec" envconfig:"MARKET_REQUEST_TIMEOUT_SEC"`
	RatePerSecond     float64 `toml:"rate_per_second" envconfig:"MARKET_RATE_PER_SECOND"`
	RateBurst         int     `toml:"rate_burst" envconfig:"MARKET_RATE_BURST"`
	MaxRetries        int     `toml:"max_retries" envconfig:"MARKET_MAX_RETRIES"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:         filepath.Join(home, ".avicrm"),
		ListenAddr:      "127.0.0.1:8710",
		SyncIntervalSec: 300,
		PageSize:        50,
		Market: Market{
			BaseURL:           "https://api.avito.ru",
			TokenURL:          "https://api.avito.ru/token",
			PublicOrigin:      "https://www.avito.ru",
			RequestTimeoutSec: 30,
			RatePerSecond:     5,
			RateBurst:         10,
			MaxRetries:        3,
		},
	}
}

// Load reads config from the given path (missing file is fine, defaults
// apply) and then overlays AVICRM_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := envconfig.Process("avicrm", cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// DBPath returns the sqlite database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "avicrm.db")
}

// LogPath returns the daemon log file path under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "avicrmd.log")
}

// SyncInterval returns the pass interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// RequestTimeout returns the per-call marketplace timeout as a duration.
func (m Market) RequestTimeout() time.Duration {
	return time.Duration(m.RequestTimeoutSec) * time.Second
}
