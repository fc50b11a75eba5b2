package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Config configures logging, tracing, metrics and store events.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig

	// ResourceAttributes are attached to every exported span.
	ResourceAttributes map[string]string
}

// LoggingConfig selects the log level, encoding and destination.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string

	// Format is console or json.
	Format string

	// Output is stdout, stderr or a file path.
	Output string
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp, stdout or none.
	Exporter string
	Endpoint string
	Insecure bool

	SamplingRate  float64
	ExportTimeout time.Duration
}

// MetricsConfig configures the Prometheus registry and its listener.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string
	Namespace     string

	// Buckets are the operation latency buckets in seconds.
	Buckets []float64
}

// EventsConfig configures store change events.
type EventsConfig struct {
	Enabled bool

	// MinLevel drops events below info, warning or error.
	MinLevel string

	// Log writes delivered events to the telemetry logger.
	Log bool
}

// DefaultConfig returns the configuration of a local datastore process.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "datastore",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			Insecure:      true,
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "datastore",
			// Local stores answer in micro to milliseconds.
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		Events: EventsConfig{
			Enabled:  true,
			MinLevel: EventLevelInfo,
		},
		ResourceAttributes: make(map[string]string),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ServiceName == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if c.ServiceVersion == "" {
		errs = append(errs, errors.New("service version is required"))
	}

	if _, ok := logLevels[c.Logging.Level]; !ok {
		errs = append(errs, fmt.Errorf("invalid log level: %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %q (must be console or json)", c.Logging.Format))
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			errs = append(errs, fmt.Errorf("invalid trace exporter: %q", c.Tracing.Exporter))
		}
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0 and 1, got %v", c.Tracing.SamplingRate))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		errs = append(errs, errors.New("metrics listen address is required when metrics are enabled"))
	}

	if c.Events.MinLevel != "" {
		if _, ok := eventLevels[c.Events.MinLevel]; !ok {
			errs = append(errs, fmt.Errorf("invalid event level: %q", c.Events.MinLevel))
		}
	}

	return errors.Join(errs...)
}
