package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Loaded once at
// startup and immutable afterwards; sensitive or per-host values can
// be overridden through environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		WSURL   string   `yaml:"ws_url"`
		RestURL string   `yaml:"rest_url"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"feed"`

	Database struct {
		Path      string `yaml:"path"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Market struct {
		HistoryCapacity int `yaml:"history_capacity"`
	} `yaml:"market"`

	Viz struct {
		Enabled           bool   `yaml:"enabled"`
		RefreshIntervalMS int    `yaml:"refresh_interval_ms"`
		OutputDir         string `yaml:"output_dir"`
	} `yaml:"viz"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// normalize uppercases symbols and fills defaults.
func (c *Config) normalize() {
	for i, s := range c.Feed.Symbols {
		c.Feed.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = 100
	}
	if c.Market.HistoryCapacity == 0 {
		c.Market.HistoryCapacity = 1000
	}
	if c.Viz.RefreshIntervalMS == 0 {
		c.Viz.RefreshIntervalMS = 5000
	}
	if c.Viz.OutputDir == "" {
		c.Viz.OutputDir = "viz"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.WSURL == "" || (!hasPrefix(c.Feed.WSURL, "ws://") && !hasPrefix(c.Feed.WSURL, "wss://")) {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Market.HistoryCapacity < 1 {
		return fmt.Errorf("history capacity must be positive")
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("MONITOR_FEED_WS_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
	if url := os.Getenv("MONITOR_FEED_REST_URL"); url != "" {
		cfg.Feed.RestURL = url
	}
	if db := os.Getenv("MONITOR_DB_PATH"); db != "" {
		cfg.Database.Path = db
	}
	if syms := os.Getenv("MONITOR_SYMBOLS"); syms != "" {
		cfg.Feed.Symbols = strings.Split(syms, ",")
	}
}
