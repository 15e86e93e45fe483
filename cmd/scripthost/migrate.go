// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/scripthost/internal/store"
)

// migrator is the part of *store.Migrator the commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// newMigrator is swapped in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(app *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the plugin KV schema",
		Long: `Apply or roll back the migrations that create the plugin_kv table
used by host.kv_* when kv.database_url is set.`,
	}

	withMigrator := func(run func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(app)
			if err != nil {
				return err
			}
			m, err := newMigrator(url)
			if err != nil {
				return err
			}
			defer func() {
				if err := m.Close(); err != nil {
					cmd.PrintErrln("warning: closing migrator:", err)
				}
			}()
			return run(cmd, m, args)
		}
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			if steps > 0 {
				if err := m.Steps(steps); err != nil {
					return err
				}
			} else if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	}
	up.Flags().IntVar(&steps, "steps", 0, "apply at most this many migrations (0 = all)")

	var downSteps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			var err error
			if all {
				err = m.Down()
			} else {
				err = m.Steps(-downSteps)
			}
			if err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := printVersion(cmd, m); err != nil {
				return err
			}
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			for _, v := range pending {
				name, err := store.MigrationName(v)
				if err != nil {
					return err
				}
				cmd.Printf("pending: %s\n", name)
			}
			return nil
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long:  `Mark VERSION as applied and clear the dirty flag after a failed migration was repaired by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	}

	cmd.AddCommand(up, down, versionCmd, force)
	return cmd
}

func databaseURL(app *cli) (string, error) {
	if app.cfg == nil || app.cfg.KV.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("kv.database_url (--database-url) is required")
	}
	return app.cfg.KV.DatabaseURL, nil
}

func printVersion(cmd *cobra.Command, m migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	switch {
	case v == 0:
		cmd.Println("Schema version: none")
	case dirty:
		cmd.Printf("Schema version: %d (dirty)\n", v)
	default:
		cmd.Printf("Schema version: %d\n", v)
	}
	return nil
}

// parseForceVersion reads a leading integer, ignoring surrounding text.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	return v, nil
}
