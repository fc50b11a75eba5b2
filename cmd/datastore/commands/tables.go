package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/llevacuentas/datastore/pkg/database"
)

func newTablesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				tables, err := svc.GetAllTables(ctx)
				if err != nil {
					return err
				}
				return o.print(tables)
			})
		},
	}
}

func newIsTableCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "istable <table>",
		Short: "Report whether a table exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				ok, err := svc.IsTable(ctx, args[0])
				if err != nil {
					return err
				}
				return o.print(ok)
			})
		},
	}
}

func newDeleteTableCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-table <table>",
		Short: "Drop a table from the store",
		Long: `Drop a table from the store.

The table opened by --table cannot be dropped. Open another table first:

  datastore --table storage_table delete-table old_table`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				return svc.DeleteTable(ctx, args[0])
			})
		},
	}
}
