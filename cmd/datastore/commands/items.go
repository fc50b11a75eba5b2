package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llevacuentas/datastore/pkg/database"
	"github.com/llevacuentas/datastore/pkg/stores"
)

func newEchoCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "echo <value>",
		Short: "Echo a value through the storage plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				value, err := svc.Echo(ctx, args[0])
				if err != nil {
					return err
				}
				return o.print(value)
			})
		},
	}
}

func newSetCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under a key",
		Example: `  # Store a value in the default table
  datastore set session abc123

  # Store in another table
  datastore --table settings set theme dark`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				return svc.SetItem(ctx, args[0], args[1])
			})
		},
	}
}

func newGetCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Long: `Print the value stored under a key.

A key that does not exist prints an empty value. Use "iskey" to tell an
absent key from an empty value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				value, err := svc.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				return o.print(value)
			})
		},
	}
}

func newRemoveCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key>",
		Aliases: []string{"rm"},
		Short:   "Remove a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				return svc.RemoveItem(ctx, args[0])
			})
		},
	}
}

func newIsKeyCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "iskey <key>",
		Short: "Report whether a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				ok, err := svc.IsKey(ctx, args[0])
				if err != nil {
					return err
				}
				return o.print(ok)
			})
		},
	}
}

func newClearCommand(o *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every key of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("clear removes every key of the table, pass --force to confirm")
			}
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				return svc.Clear(ctx)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm removing every key")

	return cmd
}

func newKeysCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the keys of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				keys, err := svc.GetAllKeys(ctx)
				if err != nil {
					return err
				}
				return o.print(keys)
			})
		},
	}
}

func newValuesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "values",
		Short: "List the values of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				values, err := svc.GetAllValues(ctx)
				if err != nil {
					return err
				}
				return o.print(values)
			})
		},
	}
}

func newFilterCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "filter <pattern>",
		Short: "List the values whose keys match a pattern",
		Long: `List the values whose keys match a pattern.

A pattern starting with % matches keys ending with the rest, a pattern ending
with % matches keys starting with the rest, and any other pattern matches keys
containing it.`,
		Example: `  # Values of keys starting with "user."
  datastore filter 'user.%'

  # Values of keys ending with ".tmp"
  datastore filter '%.tmp'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				values, err := svc.GetFilterValues(ctx, args[0])
				if err != nil {
					return err
				}
				return o.print(values)
			})
		},
	}
}

func newKeysValuesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keysvalues",
		Short: "List every key and value of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				kvs, err := svc.GetAllKeysValues(ctx)
				if err != nil {
					return err
				}
				if o.jsonOutput {
					if kvs == nil {
						kvs = []stores.KeyValue{}
					}
					return o.print(kvs)
				}
				for _, kv := range kvs {
					if _, err := fmt.Fprintf(o.out, "%s=%s\n", kv.Key, kv.Value); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
