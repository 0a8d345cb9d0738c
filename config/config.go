package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "ESAGG_"

// Event store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// Postgres drivers.
const (
	DriverPGX  = "pgx"
	DriverSQL  = "sql"
	DriverSQLX = "sqlx"
)

// Metrics backends.
const (
	MetricsOTel       = "otel"
	MetricsPrometheus = "prometheus"
)

var (
	// ErrReadingConfigFailed wraps failures while reading the YAML file.
	ErrReadingConfigFailed = errors.New("reading the config file failed")

	// ErrParsingConfigFailed wraps failures while decoding YAML or environment variables.
	ErrParsingConfigFailed = errors.New("parsing the config failed")

	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the complete configuration of a process.
type Config struct {
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	EventStore EventStoreConfig `yaml:"event_store" envPrefix:"EVENT_STORE_"`
	Snapshots  SnapshotConfig   `yaml:"snapshots" envPrefix:"SNAPSHOTS_"`
	File       FileConfig       `yaml:"file" envPrefix:"FILE_"`
	Postgres   PostgresConfig   `yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis      RedisConfig      `yaml:"redis" envPrefix:"REDIS_"`
	Retry      RetryConfig      `yaml:"retry" envPrefix:"RETRY_"`

	Observability ObservabilityConfig `yaml:"observability" envPrefix:"OBSERVABILITY_"`
}

// LogConfig selects level and format of the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn or error
	Format string `yaml:"format" env:"FORMAT"` // json or text
}

// EventStoreConfig selects the event store backend.
type EventStoreConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // memory, file or postgres
}

// SnapshotConfig selects the snapshot store and the snapshot cadence.
type SnapshotConfig struct {
	Store        string `yaml:"store" env:"STORE"` // none, memory, file, postgres or redis
	EveryNEvents uint64 `yaml:"every_n_events" env:"EVERY_N_EVENTS"`
	EverySave    bool   `yaml:"every_save" env:"EVERY_SAVE"`
}

// FileConfig configures the JSON file stores.
type FileConfig struct {
	Dir          string `yaml:"dir" env:"DIR"`
	SnapshotFile string `yaml:"snapshot_file" env:"SNAPSHOT_FILE"`
}

// PostgresConfig configures the Postgres connection pool.
type PostgresConfig struct {
	DSN               string        `yaml:"dsn" env:"DSN"`
	ReplicaDSN        string        `yaml:"replica_dsn" env:"REPLICA_DSN"`
	Driver            string        `yaml:"driver" env:"DRIVER"` // pgx, sql or sqlx
	EventTable        string        `yaml:"event_table" env:"EVENT_TABLE"`
	SnapshotTable     string        `yaml:"snapshot_table" env:"SNAPSHOT_TABLE"`
	CreateSchema      bool          `yaml:"create_schema" env:"CREATE_SCHEMA"`
	MaxConns          int32         `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns          int32         `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" env:"HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// RedisConfig configures the Redis snapshot store.
type RedisConfig struct {
	URL          string        `yaml:"url" env:"URL"`
	KeyPrefix    string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	SnapshotTTL  time.Duration `yaml:"snapshot_ttl" env:"SNAPSHOT_TTL"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// RetryConfig configures retrying command handlers on concurrency conflicts. MaxAttempts 0 disables retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay    time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	JitterFactor float64       `yaml:"jitter_factor" env:"JITTER_FACTOR"`
}

// ObservabilityConfig switches metrics and tracing on. Traces always go to OpenTelemetry.
type ObservabilityConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Metrics string `yaml:"metrics" env:"METRICS"` // otel or prometheus
}

// Default returns the configuration of a process that keeps everything in memory.
func Default() Config {
	return Config{
		Log:        LogConfig{Level: "info", Format: "text"},
		EventStore: EventStoreConfig{Backend: BackendMemory},
		Snapshots:  SnapshotConfig{Store: BackendNone},
		File:       FileConfig{Dir: "data", SnapshotFile: "snapshots.json"},
		Postgres: PostgresConfig{
			Driver:            DriverPGX,
			EventTable:        "events",
			SnapshotTable:     "snapshots",
			MaxConns:          8,
			MinConns:          2,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   5 * time.Minute,
			HealthCheckPeriod: time.Minute,
			ConnectTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379/0",
			KeyPrefix:    "snapshot",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  0,
			BaseDelay:    10 * time.Millisecond,
			JitterFactor: 0.3,
		},
		Observability: ObservabilityConfig{Metrics: MetricsOTel},
	}
}

// Load returns Default overlaid with the YAML file at path, if path is not empty, and then with the
// environment. Selections are lowercased before the result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return Config{}, errors.Join(ErrReadingConfigFailed, readErr)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Join(ErrParsingConfigFailed, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Join(ErrParsingConfigFailed, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that every selection names a known backend and that the selected backends are configured.
func (c Config) Validate() error {
	var problems []error

	if _, err := parseLevel(c.Log.Level); err != nil {
		problems = append(problems, err)
	}

	if !oneOf(c.Log.Format, "json", "text") {
		problems = append(problems, fmt.Errorf("log format %q is not json or text", c.Log.Format))
	}

	if !oneOf(c.EventStore.Backend, BackendMemory, BackendFile, BackendPostgres) {
		problems = append(problems, fmt.Errorf("event store backend %q is unknown", c.EventStore.Backend))
	}

	if !oneOf(c.Snapshots.Store, BackendNone, BackendMemory, BackendFile, BackendPostgres, BackendRedis) {
		problems = append(problems, fmt.Errorf("snapshot store %q is unknown", c.Snapshots.Store))
	}

	if c.usesFiles() && c.File.Dir == "" {
		problems = append(problems, errors.New("file dir is required"))
	}

	if c.Snapshots.Store == BackendFile && c.File.SnapshotFile == "" {
		problems = append(problems, errors.New("file snapshot file is required"))
	}

	if c.usesPostgres() {
		if c.Postgres.DSN == "" {
			problems = append(problems, errors.New("postgres dsn is required"))
		}

		if !oneOf(c.Postgres.Driver, DriverPGX, DriverSQL, DriverSQLX) {
			problems = append(problems, fmt.Errorf("postgres driver %q is unknown", c.Postgres.Driver))
		}

		if c.Postgres.ReplicaDSN != "" && c.Postgres.Driver != DriverPGX {
			problems = append(problems, errors.New("a postgres replica is only supported with the pgx driver"))
		}
	}

	if c.Snapshots.Store == BackendRedis && c.Redis.URL == "" {
		problems = append(problems, errors.New("redis url is required"))
	}

	if !oneOf(c.Observability.Metrics, MetricsOTel, MetricsPrometheus) {
		problems = append(problems, fmt.Errorf("metrics backend %q is unknown", c.Observability.Metrics))
	}

	if c.Retry.MaxAttempts < 0 {
		problems = append(problems, errors.New("retry max attempts must not be negative"))
	}

	if len(problems) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, problems...)...)
	}

	return nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.EventStore.Backend = strings.ToLower(c.EventStore.Backend)
	c.Snapshots.Store = strings.ToLower(c.Snapshots.Store)
	c.Postgres.Driver = strings.ToLower(c.Postgres.Driver)
	c.Observability.Metrics = strings.ToLower(c.Observability.Metrics)
}

func (c Config) usesFiles() bool {
	return c.EventStore.Backend == BackendFile || c.Snapshots.Store == BackendFile
}

func (c Config) usesPostgres() bool {
	return c.EventStore.Backend == BackendPostgres || c.Snapshots.Store == BackendPostgres
}

func oneOf(value string, allowed ...string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}

	return false
}
