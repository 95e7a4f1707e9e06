package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := migrationOps()
		if err != nil {
			return err
		}
		if err := ops.Migrate(); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := migrationOps()
		if err != nil {
			return err
		}
		if err := ops.Rollback(migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func printVersion(cmd *cobra.Command) error {
	ops, err := migrationOps()
	if err != nil {
		return err
	}
	version, dirty, err := ops.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"version": version, "dirty": dirty})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}
