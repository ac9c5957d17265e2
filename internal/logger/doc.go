// Package logger provides a structured logging facility based on Zap.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Format: console (colored, human readable) or json
//
// Log output goes to stderr so generated scripts and reports written to
// stdout stay clean.
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info", Format: "console"})
//	log.Named("differ").Info("table compared", zap.String("table", "ORDERS"))
package logger
