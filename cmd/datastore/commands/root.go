package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	dataDir    string
	platform   string
	engine     string
	database   string
	table      string
	verbose    bool
	jsonOutput bool

	version string
	out     io.Writer
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &options{version: version}

	rootCmd := &cobra.Command{
		Use:   "datastore",
		Short: "Key/value stores backed by SQLite, BoltDB or memory",
		Long: `datastore manages key/value stores through the same guarded service the
application uses.

Every command bootstraps the service, opens the configured store and table,
performs one operation and shuts down. "serve" keeps the store open and
exposes Prometheus metrics until interrupted.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.out = cmd.OutOrStdout()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory holding store files")
	flags.StringVar(&opts.platform, "platform", "", "platform (android, ios, electron, web)")
	flags.StringVar(&opts.engine, "engine", "", "storage engine (sqlite, bolt, memory)")
	flags.StringVarP(&opts.database, "database", "d", "", "store to open")
	flags.StringVarP(&opts.table, "table", "t", "", "table to open")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newEchoCommand(opts))
	rootCmd.AddCommand(newSetCommand(opts))
	rootCmd.AddCommand(newGetCommand(opts))
	rootCmd.AddCommand(newRemoveCommand(opts))
	rootCmd.AddCommand(newIsKeyCommand(opts))
	rootCmd.AddCommand(newClearCommand(opts))
	rootCmd.AddCommand(newKeysCommand(opts))
	rootCmd.AddCommand(newValuesCommand(opts))
	rootCmd.AddCommand(newFilterCommand(opts))
	rootCmd.AddCommand(newKeysValuesCommand(opts))
	rootCmd.AddCommand(newTablesCommand(opts))
	rootCmd.AddCommand(newIsTableCommand(opts))
	rootCmd.AddCommand(newDeleteTableCommand(opts))
	rootCmd.AddCommand(newExistsCommand(opts))
	rootCmd.AddCommand(newDeleteStoreCommand(opts))
	rootCmd.AddCommand(newImportCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))

	return rootCmd
}
