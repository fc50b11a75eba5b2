// Package bootstrap wires configuration, telemetry, the storage plugin and
// the database service together at application start-up.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/llevacuentas/datastore/pkg/config"
	"github.com/llevacuentas/datastore/pkg/database"
	"github.com/llevacuentas/datastore/pkg/stores"
	"github.com/llevacuentas/datastore/pkg/telemetry"
)

// App owns the database service for the lifetime of the process.
type App struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
	service *database.Service

	mu         sync.RWMutex
	isWeb      bool
	initPlugin bool
}

// New creates an application for cfg. tel may be nil.
func New(cfg *config.Config, tel *telemetry.Telemetry) *App {
	logger := telemetry.NopLogger()
	var metrics *telemetry.Metrics
	if tel != nil {
		if tel.Logger != nil {
			logger = tel.Logger
		}
		metrics = tel.Metrics
	}

	return &App{
		cfg:    cfg,
		tel:    tel,
		logger: logger.NewComponentLogger("bootstrap"),
		service: database.New(cfg.Platform, NewLoader(cfg, tel),
			database.WithLogger(logger),
			database.WithMetrics(metrics),
		),
	}
}

// NewLoader returns a loader that builds the configured driver and engine,
// instrumented with tel when it is non-nil.
func NewLoader(cfg *config.Config, tel *telemetry.Telemetry) database.Loader {
	return func(ctx context.Context) (stores.Plugin, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		driver, err := stores.NewDriver(cfg.EngineName(), cfg.DriverConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create %s driver: %w", cfg.EngineName(), err)
		}
		return stores.Instrument(stores.NewEngine(driver), tel), nil
	}
}

// Initialize waits for ready (a nil channel means the platform is already
// ready), initializes the service and opens the configured default store.
// On failure InitPlugin reports false and the error is returned.
func (a *App) Initialize(ctx context.Context, ready <-chan struct{}) error {
	return a.initialize(ctx, ready, true)
}

// InitializeService is Initialize without opening the default store. Callers
// that address stores by name use it so that probing a store does not create
// it.
func (a *App) InitializeService(ctx context.Context, ready <-chan struct{}) error {
	return a.initialize(ctx, ready, false)
}

func (a *App) initialize(ctx context.Context, ready <-chan struct{}, openDefault bool) error {
	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return a.fail(fmt.Errorf("waiting for platform: %w", ctx.Err()))
		}
	}

	logger := a.logger.WithDriver(a.cfg.EngineName(), a.cfg.Platform)

	if err := a.service.Init(ctx); err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.isWeb = a.cfg.IsWeb()
	a.mu.Unlock()

	if openDefault {
		if err := a.service.OpenStore(ctx, a.cfg.StoreOptions()); err != nil {
			return a.fail(fmt.Errorf("failed to open default store: %w", err))
		}
		logger = logger.WithStore(a.cfg.Database).WithTable(a.cfg.Table)
	}

	a.mu.Lock()
	a.initPlugin = true
	a.mu.Unlock()

	logger.Info("Storage initialized")
	return nil
}

func (a *App) fail(err error) error {
	a.mu.Lock()
	a.initPlugin = false
	a.mu.Unlock()

	a.logger.WithError(err).Error("Storage initialization failed")
	return err
}

// Service returns the database service.
func (a *App) Service() *database.Service {
	return a.service
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Telemetry returns the telemetry bundle, possibly nil.
func (a *App) Telemetry() *telemetry.Telemetry {
	return a.tel
}

// IsWeb reports whether the app runs on the web platform.
func (a *App) IsWeb() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isWeb
}

// InitPlugin reports whether Initialize completed.
func (a *App) InitPlugin() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initPlugin
}

// Shutdown closes the service and flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.initPlugin = false
	a.mu.Unlock()

	var errs []error
	if err := a.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close service: %w", err))
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
