package config

import (
	"fmt"
	"time"

	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/config"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	// Driver is postgres or memory.
	Driver string `yaml:"driver"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type ActivityConfig struct {
	Queue      string        `yaml:"queue"`
	MaxRetries int           `yaml:"max_retries"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	RetryTTL   time.Duration `yaml:"retry_ttl"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	DB        config.DBConfig     `yaml:"db"`
	MQ        config.MQConfig     `yaml:"mq"`
	Redis     config.RedisConfig  `yaml:"redis"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	Server    config.ServerConfig `yaml:"server"`
	Store     StoreConfig         `yaml:"store"`
	Cache     CacheConfig         `yaml:"cache"`
	Outbox    OutboxConfig        `yaml:"outbox"`
	Activity  ActivityConfig      `yaml:"activity"`
	Telemetry otel.Config         `yaml:"telemetry"`
	Log       LogConfig           `yaml:"log"`
}

// Load reads CONFIG_DIR (default "config") for CONFIG_ENV (default "local"), then applies
// environment overrides.
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	cfg := defaults()
	if err := config.Decode(env, dir, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	if driver := config.GetEnv("STORE_DRIVER", ""); driver != "" {
		cfg.Store.Driver = driver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("invalid store.driver %q: want %s or %s", c.Store.Driver, DriverPostgres, DriverMemory)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: config.ServerConfig{Port: "8080", ShutdownTimeout: 10 * time.Second},
		Store:  StoreConfig{Driver: DriverPostgres},
		Cache:  CacheConfig{TTL: 5 * time.Minute},
		Outbox: OutboxConfig{Interval: 2 * time.Second, BatchSize: 100, MaxRetries: 5},
		Activity: ActivityConfig{
			Queue:      "activity.feed",
			MaxRetries: 5,
			DedupTTL:   24 * time.Hour,
			RetryTTL:   time.Hour,
		},
		JWT:       config.JWTConfig{Issuer: "project-nexus", TTL: 24 * time.Hour},
		Telemetry: otel.Config{ServiceName: "project-nexus", SampleRatio: 1},
		Log:       LogConfig{Level: "info"},
	}
}
