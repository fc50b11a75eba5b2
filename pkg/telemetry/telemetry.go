package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Telemetry bundles the logger, tracer, metrics and event publisher of one
// datastore process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// NewTelemetry validates cfg and builds every component.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment, cfg.ResourceAttributes)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	if cfg.Events.Log {
		events.Subscribe(logEvent(logger.NewComponentLogger("events")), nil)
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

func logEvent(logger *Logger) EventSubscriber {
	return func(e Event) {
		l := logger.WithField("type", e.Type)
		if e.Store != "" {
			l = l.WithStore(e.Store)
		}
		if e.Table != "" {
			l = l.WithTable(e.Table)
		}
		switch e.Level {
		case EventLevelError:
			l.Error(e.Message)
		case EventLevelWarning:
			l.Warn(e.Message)
		default:
			l.Info(e.Message)
		}
	}
}

// Shutdown stops events, flushes spans and stops the metrics listener.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
		t.Metrics.StopMetricsServer(ctx),
	)
}

// StartMetricsServer serves the metrics registry if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer(t.Logger.NewComponentLogger("metrics"))
}

// StoreOperation names a plugin call for RecordStoreOperation.
type StoreOperation struct {
	Name     string
	Database string
	Table    string

	// Attributes are added to the span.
	Attributes []attribute.KeyValue
}

// RecordStoreOperation runs fn inside a store span, then records its
// duration and outcome. Failures are logged at debug level and published
// as error events. A nil Telemetry just runs fn.
func (t *Telemetry) RecordStoreOperation(ctx context.Context, op StoreOperation, fn func(ctx context.Context) error) error {
	if t == nil {
		return fn(ctx)
	}

	ctx, span := t.Tracer.StartStoreSpan(ctx, op.Name, op.Database, op.Table, op.Attributes...)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	endSpan(span, err)

	t.Metrics.RecordOperation(op.Name, err, duration)

	logger := t.Logger
	if logger == nil {
		logger = NopLogger()
	}
	logger = logger.NewComponentLogger("stores").
		WithOperation(op.Name).
		WithField("duration", duration)
	if op.Database != "" {
		logger = logger.WithStore(op.Database)
	}
	if op.Table != "" {
		logger = logger.WithTable(op.Table)
	}

	if err != nil {
		logger.WithError(err).Debug("Store operation failed")
		_ = t.Events.PublishError(op.Database, op.Table, op.Name, err)
		return err
	}
	logger.Trace("Store operation completed")
	return nil
}
