// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package main

import (
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/propstream/propstream/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the embedded PostgreSQL schema migrations.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *store.Migrator) error {
					cmd.Println("Running migrations...")
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *store.Migrator) error {
					cmd.Println("Rolling back migrations...")
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Rollback completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations (negative rolls back)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("INVALID_ARGUMENT").
						With("argument", args[0]).
						Errorf("steps requires an integer")
				}
				return withMigrator(func(m *store.Migrator) error {
					return m.Steps(n)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *store.Migrator) error {
					return printMigrationStatus(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the schema version without running migrations",
			Long: `Force the recorded schema version and clear the dirty flag. Use only to
recover from a failed migration after fixing the database by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("INVALID_ARGUMENT").
						With("argument", args[0]).
						Errorf("force requires an integer version")
				}
				return withMigrator(func(m *store.Migrator) error {
					return m.Force(v)
				})
			},
		},
	)

	return cmd
}

// withMigrator runs fn against a migrator built from DATABASE_URL and
// closes it afterwards.
func withMigrator(fn func(*store.Migrator) error) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m *store.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	if version == 0 {
		cmd.Println("Schema version: none")
	} else {
		name, _ := store.MigrationName(version)
		cmd.Printf("Schema version: %d (%s)\n", version, name)
	}
	if dirty {
		cmd.Println("WARNING: schema is dirty; a migration failed part-way")
	}

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Println("Pending migrations:")
	for _, v := range pending {
		name, _ := store.MigrationName(v)
		cmd.Printf("  %d (%s)\n", v, name)
	}
	return nil
}
