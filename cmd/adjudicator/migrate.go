// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/config"
	"github.com/adjudicator/adjudicator/internal/handoff/postgres"
	"github.com/adjudicator/adjudicator/internal/handoff/sqlite"
)

// migrator is the subset of the store migrators the commands use.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(driver, dsn string) (migrator, error) {
	if driver == config.DriverSQLite {
		return sqlite.NewMigrator(dsn)
	}
	return postgres.NewMigrator(dsn)
}

// migrationName looks up the file name of an applied version.
func migrationName(driver string, v uint) string {
	lookup := postgres.MigrationName
	if driver == config.DriverSQLite {
		lookup = sqlite.MigrationName
	}
	name, _ := lookup(v) //nolint:errcheck // name is informational
	return name
}

// newMigrateCmd creates the migrate command tree.
func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the hand-off store schema",
		Long: `Manage schema migrations for the sqlite and postgres hand-off stores.
The sqlite store also migrates itself when opened.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return withMigrator(a, func(m migrator) error {
				pending, err := m.Pending()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration(s)\n", len(pending))
				return nil
			})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return withMigrator(a, func(m migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Rolled back all migrations")
				return nil
			})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return withMigrator(a, func(m migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				name := migrationName(a.cfg.Store.Driver, v)
				line := fmt.Sprintf("Version: %d", v)
				if name != "" {
					line += " (" + name + ")"
				}
				if dirty {
					line += " [dirty]"
				}
				cmd.Println(line)
				return nil
			})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(a, func(m migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", v)
				return nil
			})
		}),
	})

	return cmd
}

func withMigrator(a *app, fn func(migrator) error) error {
	dsn := a.cfg.Store.DSN
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
	case config.DriverSQLite:
		path, err := a.sqlitePath()
		if err != nil {
			return err
		}
		dsn = path
	default:
		return oops.Code(CodeInvalidArgs).
			With("driver", a.cfg.Store.Driver).
			Hint("set --store.driver to sqlite or postgres").
			Errorf("the %s store has no schema", a.cfg.Store.Driver)
	}
	m, err := newMigrator(a.cfg.Store.Driver, dsn)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, m.Close)
	return fn(m)
}

// parseForceVersion accepts a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("version", s).Errorf("version must be a non-negative integer")
	}
	return v, nil
}
