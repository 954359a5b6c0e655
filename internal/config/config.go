package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	World      WorldConfig      `toml:"world"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Simulation SimulationConfig `toml:"simulation"`
	Database   DatabaseConfig   `toml:"database"`
	Logging    LoggingConfig    `toml:"logging"`
	Profiling  ProfilingConfig  `toml:"profiling"`
}

type WorldConfig struct {
	RetentionTicks int `toml:"retention_ticks"` // committed ticks kept for rollback
}

type SchedulerConfig struct {
	Workers    int  `toml:"workers"` // 0 = GOMAXPROCS
	Sequential bool `toml:"sequential"`
}

type SimulationConfig struct {
	TickRate time.Duration `toml:"tick_rate"` // 0 = run unthrottled
	Ticks    int           `toml:"ticks"`
	Scenario string        `toml:"scenario"`
	Script   string        `toml:"script"` // optional Lua input script
}

// DatabaseConfig enables the checksum journal when DSN is set.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	JournalBatch    int           `toml:"journal_batch"` // checksums per insert transaction
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ProfilingConfig struct {
	Mode string `toml:"mode"` // "", "cpu", "mem" or "goroutine"
	Path string `toml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.World.RetentionTicks < 1 {
		return fmt.Errorf("world.retention_ticks must be positive, got %d", c.World.RetentionTicks)
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must not be negative, got %d", c.Scheduler.Workers)
	}
	if c.Simulation.Ticks < 0 {
		return fmt.Errorf("simulation.ticks must not be negative, got %d", c.Simulation.Ticks)
	}
	if c.Database.JournalBatch < 1 {
		return fmt.Errorf("database.journal_batch must be positive, got %d", c.Database.JournalBatch)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns %d exceeds max_open_conns %d",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	switch c.Profiling.Mode {
	case "", "cpu", "mem", "goroutine":
	default:
		return fmt.Errorf("profiling.mode %q is not one of cpu, mem, goroutine", c.Profiling.Mode)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		World: WorldConfig{
			RetentionTicks: 128,
		},
		Simulation: SimulationConfig{
			TickRate: 16 * time.Millisecond,
			Ticks:    600,
			Scenario: "data/scenario.yaml",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
			JournalBatch:    64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Profiling: ProfilingConfig{
			Path: ".",
		},
	}
}
