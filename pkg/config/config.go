package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/llevacuentas/datastore/pkg/stores"
	"github.com/llevacuentas/datastore/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATASTORE_"

// Platforms the application runs on.
const (
	PlatformAndroid  = "android"
	PlatformIOS      = "ios"
	PlatformElectron = "electron"
	PlatformWeb      = "web"
)

// Config is the application configuration.
type Config struct {
	// Platform selects the default engine: web stores live in memory.
	Platform string `yaml:"platform" env:"PLATFORM" validate:"required,oneof=android ios electron web"`

	// Engine overrides the storage driver (sqlite, bolt, memory).
	Engine string `yaml:"engine" env:"ENGINE" validate:"omitempty,oneof=sqlite bolt memory"`

	// DataDir holds the store files of file-backed engines.
	DataDir string `yaml:"data_dir" env:"DATA_DIR" validate:"required_unless=Engine memory"`

	// Database and Table are opened at start-up.
	Database string `yaml:"database" env:"DATABASE" validate:"required"`
	Table    string `yaml:"table" env:"TABLE" validate:"required"`

	// Encrypted and Mode control how the default store is opened.
	Encrypted bool   `yaml:"encrypted" env:"ENCRYPTED"`
	Mode      string `yaml:"mode" env:"MODE" validate:"oneof=no-encryption secret encryption newsecret"`

	// Secret unlocks encrypted stores. NewSecret replaces it in newsecret mode.
	Secret    string `yaml:"secret" env:"SECRET" validate:"required_if=Encrypted true"`
	NewSecret string `yaml:"new_secret" env:"NEW_SECRET" validate:"required_if=Mode newsecret"`

	SQLite  SQLiteConfig  `yaml:"sqlite" envPrefix:"SQLITE_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
	Events  EventsConfig  `yaml:"events" envPrefix:"EVENTS_"`
}

// SQLiteConfig tunes the sqlite driver.
type SQLiteConfig struct {
	BusyTimeout     time.Duration `yaml:"busy_timeout" env:"BUSY_TIMEOUT" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" validate:"gte=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=console json"`
	Output string `yaml:"output" env:"OUTPUT" validate:"required"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	ListenAddress string `yaml:"listen_address" env:"LISTEN_ADDRESS" validate:"required_if=Enabled true"`
	Path          string `yaml:"path" env:"PATH" validate:"omitempty,startswith=/"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	Exporter     string  `yaml:"exporter" env:"EXPORTER" validate:"oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint" env:"ENDPOINT" validate:"required_if=Exporter otlp"`
	SamplingRate float64 `yaml:"sampling_rate" env:"SAMPLING_RATE" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
}

// EventsConfig configures store change events.
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	MinLevel string `yaml:"min_level" env:"MIN_LEVEL" validate:"omitempty,oneof=info warning error"`

	// Log writes events to the log.
	Log bool `yaml:"log" env:"LOG"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Platform: PlatformAndroid,
		DataDir:  defaultDataDir(),
		Database: "storage",
		Table:    "storage_table",
		Mode:     stores.ModeNoEncryption,
		SQLite: SQLiteConfig{
			BusyTimeout:     5 * time.Second,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "none",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Events: EventsConfig{
			Enabled:  true,
			MinLevel: "info",
		},
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(dir, "datastore")
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty) and DATASTORE_* environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %w", errors.Join(msgs...))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsWeb reports whether the platform is the web.
func (c *Config) IsWeb() bool {
	return c.Platform == PlatformWeb
}

// EngineName returns the configured engine, defaulting by platform.
func (c *Config) EngineName() string {
	if c.Engine != "" {
		return c.Engine
	}
	if c.IsWeb() {
		return stores.DriverMemory
	}
	return stores.DriverSQLite
}

// StoreOptions returns the options used to open the default store.
func (c *Config) StoreOptions() stores.OpenOptions {
	return stores.OpenOptions{
		Database:  c.Database,
		Table:     c.Table,
		Encrypted: c.Encrypted,
		Mode:      c.Mode,
	}
}

// DriverConfig returns the sqlite driver configuration.
func (c *Config) DriverConfig() stores.SQLiteConfig {
	return stores.SQLiteConfig{
		Dir:             c.DataDir,
		Secret:          c.Secret,
		NewSecret:       c.NewSecret,
		BusyTimeout:     c.SQLite.BusyTimeout,
		ConnMaxLifetime: c.SQLite.ConnMaxLifetime,
	}
}

// Telemetry maps the configuration onto a telemetry configuration.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.ResourceAttributes["platform"] = c.Platform

	tc.Logging.Level = c.Logging.Level
	tc.Logging.Format = c.Logging.Format
	tc.Logging.Output = c.Logging.Output

	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	if c.Metrics.Path != "" {
		tc.Metrics.Path = c.Metrics.Path
	}

	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure

	tc.Events.Enabled = c.Events.Enabled
	tc.Events.MinLevel = c.Events.MinLevel
	tc.Events.Log = c.Events.Log
	return tc
}
