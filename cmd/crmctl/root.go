package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/crm/internal/admin"
	"github.com/JonMunkholm/crm/internal/logging"
)

// Global flag values.
var (
	flagConfigFile string
	flagJSON       bool
)

// settings holds the merged flag, env and config file values. Set by
// PersistentPreRunE.
var settings *viper.Viper

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "crmctl maintains the CRM database and export tasks",
	Long: `crmctl runs schema migrations and export task maintenance against the
CRM database. The database URL comes from --database-url, DATABASE_URL or
the database_url key of the config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadSettings(cmd, flagConfigFile)
		if err != nil {
			return err
		}
		settings = v
		logging.Setup(v.GetString(keyLogLevel), "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default: ./crmctl.yaml if present)")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tasksCmd)
}

// databaseURL returns the configured URL or an error naming the sources.
func databaseURL() (string, error) {
	url := settings.GetString(keyDatabaseURL)
	if url == "" {
		return "", fmt.Errorf("no database URL: set --database-url, DATABASE_URL or %s in the config file", keyDatabaseURL)
	}
	return url, nil
}

// migrationOps returns Ops that only run migrations.
func migrationOps() (*admin.Ops, error) {
	url, err := databaseURL()
	if err != nil {
		return nil, err
	}
	return admin.New(url, nil, nil), nil
}
