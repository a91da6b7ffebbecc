// Package config loads the settings of the folio command from a YAML file
// with FOLIO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Expiry    ExpiryConfig    `yaml:"expiry"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite, a connection string for postgres and
	// a URI for mongo.
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

type ExpiryConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// RateLimitConfig throttles password-gated calls per user. RPS 0 turns
// throttling off.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig sets the listen address of the Prometheus endpoint. An
// empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// EventsConfig enables the Kafka event publisher when Brokers is set.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:   DriverSQLite,
			DSN:      "folio.db",
			Database: "folio",
		},
		Expiry: ExpiryConfig{
			Interval:  5 * time.Second,
			Timeout:   20 * time.Second,
			BatchSize: 500,
		},
		Retry: RetryConfig{MaxAttempts: 3},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Log: LogConfig{Level: "info"},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Events: EventsConfig{
			Topic: "folio.orders",
		},
	}
}

// Load reads path on top of Default and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg from FOLIO_* variables found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("FOLIO_STORE_DRIVER"); ok {
		cfg.Store.Driver = v
	}
	if v, ok := get("FOLIO_STORE_DSN"); ok {
		cfg.Store.DSN = v
	}
	if v, ok := get("FOLIO_STORE_DATABASE"); ok {
		cfg.Store.Database = v
	}
	if v, ok := get("FOLIO_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("FOLIO_METRICS_ADDR"); ok {
		cfg.Metrics.Addr = v
	}
	if v, ok := get("FOLIO_EVENTS_BROKERS"); ok {
		cfg.Events.Brokers = strings.Split(v, ",")
	}
	if v, ok := get("FOLIO_EVENTS_TOPIC"); ok {
		cfg.Events.Topic = v
	}

	var errs []error
	if v, ok := get("FOLIO_LOG_DEVELOPMENT"); ok {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("FOLIO_LOG_DEVELOPMENT", err))
		cfg.Log.Development = b
	}
	if v, ok := get("FOLIO_EXPIRY_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("FOLIO_EXPIRY_INTERVAL", err))
		cfg.Expiry.Interval = d
	}
	if v, ok := get("FOLIO_EXPIRY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("FOLIO_EXPIRY_TIMEOUT", err))
		cfg.Expiry.Timeout = d
	}
	if v, ok := get("FOLIO_EXPIRY_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("FOLIO_EXPIRY_BATCH_SIZE", err))
		cfg.Expiry.BatchSize = n
	}
	if v, ok := get("FOLIO_RETRY_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("FOLIO_RETRY_MAX_ATTEMPTS", err))
		cfg.Retry.MaxAttempts = n
	}
	if v, ok := get("FOLIO_RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envErr("FOLIO_RATE_LIMIT_RPS", err))
		cfg.RateLimit.RPS = f
	}
	if v, ok := get("FOLIO_RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("FOLIO_RATE_LIMIT_BURST", err))
		cfg.RateLimit.Burst = n
	}
	return errors.Join(errs...)
}

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("config: %s: %w", key, err)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("config: store.dsn is required for %s", c.Store.Driver))
		}
	case DriverMongo:
		if c.Store.DSN == "" || c.Store.Database == "" {
			errs = append(errs, errors.New("config: store.dsn and store.database are required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store.driver %q", c.Store.Driver))
	}

	if c.Expiry.Interval <= 0 {
		errs = append(errs, errors.New("config: expiry.interval must be positive"))
	}
	if c.Expiry.Timeout <= 0 {
		errs = append(errs, errors.New("config: expiry.timeout must be positive"))
	}
	if c.Expiry.BatchSize <= 0 {
		errs = append(errs, errors.New("config: expiry.batch_size must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("config: retry.max_attempts must be positive"))
	}
	if c.RateLimit.RPS < 0 || (c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("config: rate_limit needs rps >= 0 and a positive burst"))
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		errs = append(errs, errors.New("config: events.topic is required when brokers are set"))
	}

	return errors.Join(errs...)
}
