// Package config loads retrievalstat configuration from an optional YAML
// file overlaid by environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/retrievalstat/internal/engine"
	"github.com/roach88/retrievalstat/internal/ir"
)

// Counter store backends.
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

// Backends lists the supported backends.
var Backends = []string{BackendSQLite, BackendDynamoDB, BackendRedis}

// MetricTableEnv names the variable holding the metric table name.
const MetricTableEnv = "METRIC_TABLE_NAME"

// ErrMetricTableUnset is returned when no metric table name is configured.
var ErrMetricTableUnset = errors.New(MetricTableEnv + " is not set")

// Config is the complete runtime configuration.
//
// Environment variables are only applied when present, so they override
// the file, which overrides Default().
type Config struct {
	Backend         string `yaml:"backend" env:"RETRIEVALSTAT_BACKEND"`
	MetricTable     string `yaml:"metric_table" env:"METRIC_TABLE_NAME"`
	EventSource     string `yaml:"event_source" env:"RETRIEVALSTAT_EVENT_SOURCE"`
	MaxAttempts     int    `yaml:"max_attempts" env:"RETRIEVALSTAT_MAX_ATTEMPTS"`
	TransitionsFile string `yaml:"transitions_file" env:"RETRIEVALSTAT_TRANSITIONS_FILE"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Redis    RedisConfig    `yaml:"redis"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"RETRIEVALSTAT_SQLITE_PATH"`
}

// DynamoDBConfig configures the DynamoDB backend.
// Credentials come from the default AWS chain.
type DynamoDBConfig struct {
	Region   string `yaml:"region" env:"RETRIEVALSTAT_DYNAMODB_REGION"`
	Endpoint string `yaml:"endpoint" env:"RETRIEVALSTAT_DYNAMODB_ENDPOINT"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"RETRIEVALSTAT_REDIS_ADDR"`
	Password string        `yaml:"password" env:"RETRIEVALSTAT_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"RETRIEVALSTAT_REDIS_DB"`
	Prefix   string        `yaml:"prefix" env:"RETRIEVALSTAT_REDIS_PREFIX"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"RETRIEVALSTAT_REDIS_TOKEN_TTL"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend:     BackendSQLite,
		EventSource: ir.DefaultEventSource,
		MaxAttempts: engine.DefaultMaxAttempts,
		SQLite:      SQLiteConfig{Path: "retrievalstat.db"},
		Redis: RedisConfig{
			Prefix:   "retrievalstat:",
			TokenTTL: 10 * time.Minute,
		},
	}
}

// Load builds the configuration from Default(), the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Reject unknown fields
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration can build a working pipeline.
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("unknown backend %q (want one of %v)", c.Backend, Backends)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	switch c.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
		if c.Redis.TokenTTL < 0 {
			return fmt.Errorf("redis.token_ttl must not be negative")
		}
	}
	return nil
}

// RetryPolicy returns the default retry policy with the configured attempts.
func (c *Config) RetryPolicy() engine.RetryPolicy {
	p := engine.DefaultRetryPolicy()
	p.MaxAttempts = c.MaxAttempts
	return p
}

// TableResolver resolves the metric table name at commit time: the process
// environment wins, the loaded configuration is the fallback.
func (c *Config) TableResolver() engine.TableResolver {
	fallback := c.MetricTable
	return func() (string, error) {
		table, err := MetricTableFromEnv()
		if err == nil {
			return table, nil
		}
		if fallback != "" {
			return fallback, nil
		}
		return "", err
	}
}

// MetricTableFromEnv reads METRIC_TABLE_NAME from the process environment.
func MetricTableFromEnv() (string, error) {
	if table := os.Getenv(MetricTableEnv); table != "" {
		return table, nil
	}
	return "", ErrMetricTableUnset
}
