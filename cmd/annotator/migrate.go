package main

import (
	"fmt"
	"strings"

	"github.com/phrazzld/aves-annotator/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [" + strings.Join(postgres.MigrationCommands, "|") + "]",
		Short:     "Manage the database schema",
		Long:      "Apply or inspect the embedded goose migrations. Requires database.url.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if !cfg.Database.UsePostgres() {
				return fmt.Errorf("database.url is not configured; migrations need a Postgres database")
			}

			db, err := postgres.Open(cmd.Context(), cfg.Database, opts.logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					opts.logger.Error("error closing database connection", "error", cerr)
				}
			}()

			return postgres.Migrate(cmd.Context(), db, args[0], opts.logger)
		},
	}
}
