// Package config provides configuration management for db-reconcile.
//
// It utilizes Viper for loading configuration from environment variables,
// the db-reconcile.yaml config file and command-line flags, and godotenv for
// an optional .env file.
//
// # Configuration Structure
//
//   - Log: logging level and format
//   - Connections: named {driver, dsn, schema} entries
//   - Reference / Target: names of the two connections being compared
//   - Data: data diff options (delete sync, ignore columns, alternate keys,
//     output format, blob mode, ...)
//   - Schema: structural diff toggles
//
// Defaults are declared on the option structs with `default:"..."` tags.
//
// # Usage
//
//	cfg, err := config.Load("", nil)
//	if err != nil {
//	    return err
//	}
//	ref, err := cfg.Connection(cfg.Reference)
package config
