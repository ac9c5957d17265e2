package cmd

import (
	"fmt"
	"os"

	"db-reconcile/internal/config"
	"db-reconcile/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// configKey annotates a flag with the config key it overrides.
const configKey = "config_key"

var (
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
)

var RootCmd = &cobra.Command{
	Use:   "db-reconcile",
	Short: "Compare two databases and generate scripts that reconcile them",
	Long: `
DB RECONCILE - schema and data reconciliation

Compares a reference database with a target database and writes the
INSERT, UPDATE and DELETE scripts that make the target's data match,
ordered by foreign key dependency.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, boundFlags(cmd.Flags()))
		if err != nil {
			return err
		}
		log, err = logger.New(&cfg.Log)
		if err != nil {
			return err
		}
		if cfg.File != "" {
			log.Debug("using config file", zap.String("file", cfg.File))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		if log != nil {
			log.Error("command failed", zap.Error(err))
			_ = log.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./"+config.FileName+".yaml)")
	pf.String("reference", "", "name of the reference connection")
	pf.String("target", "", "name of the target connection")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console, json)")

	bind(pf, "reference", "reference")
	bind(pf, "target", "target")
	bind(pf, "log-level", "log.level")
	bind(pf, "log-format", "log.format")
}

// bind marks flag name of fs as the override of config key.
func bind(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKey, []string{key})
}

// boundFlags collects the annotated flags of the running command.
func boundFlags(fs *pflag.FlagSet) map[string]*pflag.Flag {
	out := make(map[string]*pflag.Flag)
	fs.VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKey]; len(keys) == 1 {
			out[keys[0]] = f
		}
	})
	return out
}
