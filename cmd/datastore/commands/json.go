package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llevacuentas/datastore/pkg/database"
	"github.com/llevacuentas/datastore/pkg/stores"
)

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func newImportCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a JSON store document",
		Example: `  # Import from a file
  datastore import backup.json

  # Import from stdin
  cat backup.json | datastore import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				changes, err := svc.ImportFromJSON(ctx, data)
				if err != nil {
					return err
				}
				log.Info().Int("changes", changes).Msg("Import completed")
				return o.print(changes)
			})
		},
	}
}

func newExportCommand(o *options) *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the store as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				dump, err := svc.ExportToJSON(ctx)
				if err != nil {
					return err
				}
				data, err := stores.MarshalDump(dump)
				if err != nil {
					return err
				}
				if outFile == "" {
					_, err = fmt.Fprintln(o.out, string(data))
					return err
				}
				if err := os.WriteFile(outFile, data, 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", outFile, err)
				}
				log.Info().Str("file", outFile).Msg("Export completed")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the document to a file instead of stdout")

	return cmd
}

func newValidateCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check a JSON store document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return o.withService(cmd, func(ctx context.Context, svc *database.Service) error {
				ok, err := svc.IsJSONValid(ctx, data)
				if err != nil {
					return err
				}
				if !ok {
					if verr := stores.ValidateStoreJSON(data); verr != nil {
						log.Debug().Err(verr).Msg("Document rejected")
					}
				}
				return o.print(ok)
			})
		},
	}
}
