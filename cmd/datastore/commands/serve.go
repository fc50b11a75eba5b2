package commands

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llevacuentas/datastore/pkg/config"
)

func newServeCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the store open and expose metrics",
		Long: `Keep the configured store open and expose Prometheus metrics until
interrupted.

When a config file is given, changes to its logging level are applied
without a restart.`,
		Example: `  # Serve with metrics on :9090/metrics
  DATASTORE_METRICS_ENABLED=true datastore serve

  # Serve and watch a config file
  datastore serve --config datastore.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, app, err := o.startApp(cmd, true)
			if err != nil {
				return err
			}
			defer stopApp(app)

			tel := app.Telemetry()
			if err := tel.StartMetricsServer(); err != nil {
				return err
			}

			if o.configPath != "" {
				watcher := config.NewWatcher(o.configPath, tel.Logger.NewComponentLogger("config").Zerolog())
				err := watcher.Watch(ctx, func(cfg *config.Config) {
					level, err := zerolog.ParseLevel(cfg.Logging.Level)
					if err != nil {
						log.Warn().Err(err).Msg("Ignoring invalid log level")
						return
					}
					zerolog.SetGlobalLevel(level)
					log.Info().Str("level", level.String()).Msg("Log level reloaded")
				})
				if err != nil {
					return err
				}
			}

			cfg := app.Config()
			log.Info().
				Str("platform", cfg.Platform).
				Str("engine", cfg.EngineName()).
				Str("database", cfg.Database).
				Bool("metrics", cfg.Metrics.Enabled).
				Msg("Serving datastore")

			<-ctx.Done()
			log.Info().Msg("Received interrupt signal, shutting down...")
			return nil
		},
	}
}
