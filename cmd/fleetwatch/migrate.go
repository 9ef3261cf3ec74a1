package main

import (
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/adapter/persistence"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(newMigrateUpCmd(), newMigrateDownCmd())
	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := persistence.MigrateUp(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := persistence.MigrateDown(db, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")
	return cmd
}
