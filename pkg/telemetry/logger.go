package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger carrying store-scoped fields.
type Logger struct {
	zlog zerolog.Logger
}

var logLevels = map[string]zerolog.Level{
	"trace": zerolog.TraceLevel,
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
	"fatal": zerolog.FatalLevel,
}

// NewLogger builds the service logger described by cfg.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	w, err := logWriter(cfg.Output)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(w).
		Level(parseLogLevel(cfg.Level)).
		With().Timestamp().Str("service", "datastore").
		Logger()
	return &Logger{zlog: zlog}, nil
}

func logWriter(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// parseLogLevel maps a configured level to zerolog, defaulting to info.
func parseLogLevel(level string) zerolog.Level {
	if l, ok := logLevels[level]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) with(fields func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zlog: fields(l.zlog.With()).Logger()}
}

// NewComponentLogger returns a child logger tagged with component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("component", component) })
}

// WithField returns a logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

// WithStore tags the logger with a database name.
func (l *Logger) WithStore(database string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("store", database) })
}

// WithTable tags the logger with a table name.
func (l *Logger) WithTable(table string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("table", table) })
}

// WithOperation tags the logger with a plugin operation.
func (l *Logger) WithOperation(operation string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("operation", operation) })
}

// WithDriver tags the logger with the storage driver and platform.
func (l *Logger) WithDriver(name, platform string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("driver", name).Str("platform", platform)
	})
}

// WithError attaches err.
func (l *Logger) WithError(err error) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

func (l *Logger) Trace(msg string) { l.zlog.Trace().Msg(msg) }
func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }
