package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/llevacuentas/datastore/pkg/database"
)

func newExistsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <database>",
		Short: "Report whether a store exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStores(cmd, func(ctx context.Context, svc *database.Service) error {
				ok, err := svc.IsStoreExists(ctx, args[0])
				if err != nil {
					return err
				}
				return o.print(ok)
			})
		},
	}
}

func newDeleteStoreCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-store [database]",
		Short: "Delete a store and all of its tables",
		Long: `Delete a store and all of its tables.

Without an argument the default "storage" store is deleted. Deleting a
store that does not exist fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return o.withStores(cmd, func(ctx context.Context, svc *database.Service) error {
				return svc.DeleteStore(ctx, name)
			})
		},
	}
}
