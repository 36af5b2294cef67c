package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the server reads at startup. Values come
// from defaults, then an optional YAML file, then environment variables
// (highest precedence). Durations are stored as integer units so plain
// YAML and env strings parse without custom decoding.
type Config struct {
	Addr      string `yaml:"addr"`
	LogFile   string `yaml:"log_file"`
	DBPath    string `yaml:"db_path"`
	PublicURL string `yaml:"public_url"`

	ThrottleMs          int     `yaml:"throttle_ms"`
	ColorPoolSize       int     `yaml:"color_pool_size"`
	RejectWhenExhausted bool    `yaml:"reject_when_exhausted"`
	SpawnX              float64 `yaml:"spawn_x"`
	SpawnY              float64 `yaml:"spawn_y"`

	SnapshotEverySec int    `yaml:"snapshot_every_sec"`
	AdminPassHash    string `yaml:"admin_pass_hash"`

	MaxConnsPerIP int `yaml:"max_conns_per_ip"`
	MaxTotalConns int `yaml:"max_total_conns"`
}

// DefaultConfig returns the built-in defaults: 16ms move throttle
// (~60 updates/second), a 16-slot color pool, and the fixed spawn point.
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8080",
		ThrottleMs:       16,
		ColorPoolSize:    16,
		SpawnX:           400,
		SpawnY:           680,
		SnapshotEverySec: 60,
		MaxConnsPerIP:    5,
		MaxTotalConns:    1000,
	}
}

// LoadConfig builds the effective configuration. path may be empty, in
// which case only defaults and environment overrides apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.ThrottleMs <= 0 {
		return nil, fmt.Errorf("throttle_ms must be positive, got %d", cfg.ThrottleMs)
	}
	if cfg.ColorPoolSize <= 0 {
		return nil, fmt.Errorf("color_pool_size must be positive, got %d", cfg.ColorPoolSize)
	}
	return cfg, nil
}

// applyEnv overlays LOUNGE_* environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("LOUNGE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("LOUNGE_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("LOUNGE_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LOUNGE_PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	if v := os.Getenv("LOUNGE_ADMIN_PASS_HASH"); v != "" {
		c.AdminPassHash = v
	}
	if v := os.Getenv("LOUNGE_THROTTLE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ThrottleMs = n
		}
	}
	if v := os.Getenv("LOUNGE_COLOR_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ColorPoolSize = n
		}
	}
	if v := os.Getenv("LOUNGE_REJECT_WHEN_EXHAUSTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RejectWhenExhausted = b
		}
	}
}

// ThrottleInterval returns the minimum inter-update move interval
func (c *Config) ThrottleInterval() time.Duration {
	return msToDuration(c.ThrottleMs)
}

// SnapshotInterval returns how often the archiver captures the world.
// Zero disables archiving.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotEverySec) * time.Second
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
