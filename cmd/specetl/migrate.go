package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

type migrateFlags struct {
	database string
	path     string
}

func newMigrateCmd(root *rootFlags) *cobra.Command {
	flags := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the specification catalog schema",
		Long: `Apply or roll back the Postgres migrations for the specification catalog.

The database URL comes from --database, then the configuration file, then
SPECETL_DATABASE_URL or DATABASE_URL.`,
	}
	cmd.PersistentFlags().StringVar(&flags.database, "database", "", "database URL")
	cmd.PersistentFlags().StringVar(&flags.path, "path", "", "migrations directory")

	run := func(fn func(cmd *cobra.Command, m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := openMigrate(cmd, root, flags)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				err := m.Up()
				if errors.Is(err, migrate.ErrNoChange) {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run (database is up to date)")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("failed to rollback migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rollback completed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty: %v)\n", version, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number: %w", err)
				}
				if err := m.Force(version); err != nil {
					return fmt.Errorf("failed to force version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forced version to: %d\n", version)
				return nil
			}),
		},
	)
	return cmd
}

func openMigrate(cmd *cobra.Command, root *rootFlags, flags *migrateFlags) (*migrate.Migrate, error) {
	cfg, log, shutdown, err := root.setup(cmd)
	if err != nil {
		return nil, err
	}
	defer shutdown(cmd.Context())

	databaseURL := flags.database
	if databaseURL == "" {
		databaseURL = cfg.Database.URL
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required: use --database, database.url or DATABASE_URL")
	}
	path := flags.path
	if path == "" {
		path = cfg.Database.MigrationsPath
	}

	log.Info("connecting to database", "migrations_path", path)
	m, err := migrate.New(fmt.Sprintf("file://%s", path), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}
