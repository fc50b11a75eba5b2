package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llevacuentas/datastore/pkg/bootstrap"
	"github.com/llevacuentas/datastore/pkg/config"
	"github.com/llevacuentas/datastore/pkg/database"
	"github.com/llevacuentas/datastore/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// loadConfig loads the config file and applies flag overrides.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("platform") {
		cfg.Platform = o.platform
	}
	if flags.Changed("engine") {
		cfg.Engine = o.engine
	}
	if flags.Changed("database") {
		cfg.Database = o.database
	}
	if flags.Changed("table") {
		cfg.Table = o.table
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startApp builds telemetry and the application and initializes storage.
// With openDefault the configured store is opened as well.
func (o *options) startApp(cmd *cobra.Command, openDefault bool) (context.Context, *bootstrap.App, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry(o.version))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	ctx := cmd.Context()
	app := bootstrap.New(cfg, tel)

	log.Debug().
		Str("platform", cfg.Platform).
		Str("engine", cfg.EngineName()).
		Str("database", cfg.Database).
		Str("table", cfg.Table).
		Msg("Starting datastore")

	initialize := app.InitializeService
	if openDefault {
		initialize = app.Initialize
	}
	if err := initialize(ctx, nil); err != nil {
		stopApp(app)
		return nil, nil, err
	}
	return ctx, app, nil
}

func stopApp(app *bootstrap.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Shutdown failed")
	}
}

// withService runs fn against an initialized service with the configured
// store open and shuts down afterwards.
func (o *options) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *database.Service) error) error {
	return o.run(cmd, true, fn)
}

// withStores is withService for commands that name their store, leaving the
// configured store untouched.
func (o *options) withStores(cmd *cobra.Command, fn func(ctx context.Context, svc *database.Service) error) error {
	return o.run(cmd, false, fn)
}

func (o *options) run(cmd *cobra.Command, openDefault bool, fn func(ctx context.Context, svc *database.Service) error) error {
	ctx, app, err := o.startApp(cmd, openDefault)
	if err != nil {
		return err
	}
	defer stopApp(app)

	return fn(ctx, app.Service())
}

// print writes v as JSON with --json, otherwise as plain text.
func (o *options) print(v interface{}) error {
	if o.jsonOutput {
		enc := json.NewEncoder(o.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	switch val := v.(type) {
	case []string:
		if len(val) > 0 {
			_, err := fmt.Fprintln(o.out, strings.Join(val, "\n"))
			return err
		}
		return nil
	default:
		_, err := fmt.Fprintln(o.out, val)
		return err
	}
}
