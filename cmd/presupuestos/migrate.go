package main

import (
	"fmt"

	applog "presupuestos/internal/log"
	"presupuestos/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCmd(e *env) *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Apply schema migrations",
		Long:        "Apply pending schema migrations. With --rebuild every table is dropped and recreated empty.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoBackend: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var driver storage.Driver
			var location string
			switch e.cfg.DataBackend {
			case "sqlite":
				driver, location = storage.DriverSQLite, e.cfg.SQLiteDBPath
			case "postgres":
				driver, location = storage.DriverPostgres, e.cfg.PostgresDSN
			default:
				return fmt.Errorf("backend %q has no schema", e.cfg.DataBackend)
			}

			dsn := storage.MigrationDSN(driver, location)
			if rebuild {
				if err := storage.RebuildSchema(driver, dsn); err != nil {
					return err
				}
				e.logger.Warn("Schema rebuilt, all data dropped", applog.FieldOperation, applog.OpMigrate, "driver", driver)
				fmt.Fprintln(cmd.OutOrStdout(), "schema rebuilt")
				return nil
			}
			if err := storage.RunMigrations(driver, dsn); err != nil {
				return err
			}
			e.logger.Info("Migrations applied", applog.FieldOperation, applog.OpMigrate, "driver", driver)
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "drop and recreate every table")
	return cmd
}
