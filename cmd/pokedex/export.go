package main

import (
	"github.com/spf13/cobra"

	"pokedex/internal/config"
	"pokedex/internal/core"
	"pokedex/internal/infra/persistence/document"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the persisted records as a JSON document",
		Long: `export loads the configured storage and writes its records to stdout in
the persisted document layout. The seed records are printed when nothing has
been persisted yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.cfg.StorageOptions()
			opts.LoadOnStart = true
			store, err := core.OpenPersistentStore(cmd.Context(), opts, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = core.CloseStore(store) }()
			data, err := document.Encode(store.ExportState(), store.Policy())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}
	d := config.Default()
	cmd.Flags().String("storage", d.Storage.Driver, "storage driver (memory, file, s3, sqlite, postgres)")
	cmd.Flags().String("data-dir", d.Storage.Dir, "directory holding the JSON document for the file driver")
	return cmd
}
