package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "crmctl"
	configFileType = "yaml"

	keyDatabaseURL   = "database_url"
	keyLogLevel      = "log_level"
	keyExportBaseDir = "export_base_dir"
	keyStaleAfter    = "export_stale_after"
)

// loadSettings merges, in decreasing precedence, flags, environment
// variables, the config file and defaults. A missing default config file is
// not an error; a missing explicit one is.
func loadSettings(cmd *cobra.Command, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyLogLevel, "warn")
	v.SetDefault(keyExportBaseDir, "./data")
	v.SetDefault(keyStaleAfter, "2h")

	for key, env := range map[string]string{
		keyDatabaseURL:   "DATABASE_URL",
		keyLogLevel:      "LOG_LEVEL",
		keyExportBaseDir: "EXPORT_BASE_DIR",
		keyStaleAfter:    "EXPORT_STALE_AFTER",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	flags := map[string]string{
		keyDatabaseURL: "database-url",
		keyLogLevel:    "log-level",
	}
	for key, name := range flags {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}
