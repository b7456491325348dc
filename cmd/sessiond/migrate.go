package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/internal/config"
	"github.com/MrEthical07/goSession/store/postgres"
)

// NewMigrateCmd creates the migrate subcommand tree for the postgres store.
func NewMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres users schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres connection string (defaults to store.postgres_dsn)")

	withMigrator := func(fn func(cmd *cobra.Command, m *postgres.Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url := dsn
			if url == "" {
				cfg, err := config.Load(configFile, nil)
				if err != nil {
					return err
				}
				url = cfg.Store.PostgresDSN
			}
			if url == "" {
				return oops.Code("CONFIG_INVALID").Errorf("--dsn or store.postgres_dsn is required")
			}
			m, err := postgres.NewMigrator(url)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops the users table)",
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("migrations rolled back")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			cmd.Printf("version=%d dirty=%t pending=%v\n", v, dirty, pending)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied after repairing a dirty database",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").Wrap(err)
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("forced version %d\n", v)
			return nil
		}),
	})
	return cmd
}
