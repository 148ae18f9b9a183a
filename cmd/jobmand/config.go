package main

import (
	"fmt"

	"github.com/pelletier/go-toml"

	"github.com/opsfarm/jobman"
	"github.com/opsfarm/jobman/redisq"
	"github.com/opsfarm/jobman/sqlite"
)

// Config is the worker daemon configuration.
type Config struct {
	// Store selects the backing store: "sqlite" or "redis".
	Store      string `toml:"store"`
	SQLitePath string `toml:"sqlite_path"`
	RedisAddr  string `toml:"redis_addr"`

	// Listen is the address of the metrics/health listener.
	Listen string `toml:"listen"`

	// Heartbeat is the snapshot interval in seconds.
	Heartbeat int `toml:"heartbeat"`

	// Slots is the explicit slot configuration for this node.
	// Types absent here keep their previously persisted capacity.
	Slots map[string]int `toml:"slots"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		Store:      "sqlite",
		SQLitePath: "jobman.db",
		RedisAddr:  "localhost:6379",
		Listen:     "localhost:8282",
		Heartbeat:  10,
	}
	if path == "" {
		return cfg, nil
	}
	t, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	err = t.Unmarshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Heartbeat <= 0 {
		return nil, fmt.Errorf("load config: heartbeat must be positive")
	}
	return cfg, nil
}

// openServices opens the configured store and returns its services.
func openServices(cfg *Config) (jobman.JobService, jobman.HostService, error) {
	switch cfg.Store {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewJobService(db), sqlite.NewHostService(db), nil
	case "redis":
		rdb, err := redisq.Open(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return redisq.NewJobService(rdb), redisq.NewHostService(rdb), nil
	}
	return nil, nil, fmt.Errorf("unknown store: %v", cfg.Store)
}
