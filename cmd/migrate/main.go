// Command migrate applies and inspects the blog database schema.
package main

import (
	"os"
	"strconv"

	"github.com/example/blogapi/internal/config"
	"github.com/example/blogapi/internal/migrations"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// migrator is the part of *migrations.Migrator the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Close() error
}

// openMigrator loads configuration and opens the configured database.
var openMigrator = func() (migrator, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.DBAdapter == "memory" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("DB_ADAPTER=memory has no schema to migrate")
	}
	m, err := migrations.New(cfg.DBAdapter, cfg.MigrationDSN())
	if err != nil {
		return nil, err
	}
	return m, nil
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the migrate command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the blog database schema",
		Long:         `Apply, roll back and inspect the embedded schema migrations for the postgres or sqlite adapter selected by DB_ADAPTER.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newUpCmd(), newDownCmd(), newVersionCmd(), newForceCmd())
	return cmd
}

func withMigrator(run func(cmd *cobra.Command, m migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		m, err := openMigrator()
		if err != nil {
			return err
		}
		defer m.Close()
		return run(cmd, m)
	}
}

func newUpCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			var err error
			if steps > 0 {
				err = m.Steps(steps)
			} else {
				err = m.Up()
			}
			if err != nil {
				return err
			}
			cmd.Println("Migrations applied successfully")
			return nil
		}),
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "apply at most this many migrations (0 = all)")
	return cmd
}

func newDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			var err error
			if steps > 0 {
				err = m.Steps(-steps)
			} else {
				err = m.Down()
			}
			if err != nil {
				return err
			}
			cmd.Println("Migrations rolled back successfully")
			return nil
		}),
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "roll back this many migrations (0 = all)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if dirty {
				return oops.Code("MIGRATION_DIRTY").With("version", v).
					Errorf("database is in a dirty state (version %d)", v)
			}
			cmd.Printf("Current migration version: %d (latest %d)\n", v, migrations.Latest)
			return nil
		}),
	}
}

func newForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded version without running migrations",
		Long:  `Mark the database as being at <version> and clear the dirty flag. Use only after repairing a failed migration by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("MIGRATION_INVALID_VERSION").Errorf("invalid version %q", args[0])
			}
			return withMigrator(func(cmd *cobra.Command, m migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced database to version %d\n", v)
				return nil
			})(cmd, args)
		},
	}
}
