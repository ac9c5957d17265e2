package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/engine"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/schemadiff"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file base name searched next to the executable and
// in the working directory.
const FileName = "db-reconcile"

// Config holds all configuration for the application.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Connections lists every database the tool may connect to.
	Connections []dbconn.Config `mapstructure:"connections"`
	// Reference names the connection holding the source of truth.
	Reference string `mapstructure:"reference"`
	// Target names the connection being reconciled.
	Target string `mapstructure:"target"`
	// Data holds the data diff options.
	Data engine.Options `mapstructure:"data"`
	// Schema holds the structural diff options.
	Schema schemadiff.Options `mapstructure:"schema"`

	// File is the config file actually read, empty when none was found.
	File string `mapstructure:"-"`
}

// Load reads configuration with the precedence flag > env > config file >
// default. cfgFile may be empty, in which case db-reconcile.yaml is searched
// next to the executable and in the working directory. flags maps viper keys
// (e.g. "data.include_delete") to the command-line flags that override them.
func Load(cfgFile string, flags map[string]*pflag.Flag) (*Config, error) {
	// Ignore error if file doesn't exist
	_ = godotenv.Overload(envPath(cfgFile))

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	// Map environment variables to nested keys (e.g. DATA_INCLUDE_DELETE -> data.include_delete)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(ex))
		}
		v.AddConfigPath(".")
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.File = v.ConfigFileUsed()

	return &config, nil
}

// Connection returns the connection named name.
func (c *Config) Connection(name string) (*dbconn.Config, error) {
	if name == "" {
		return nil, fmt.Errorf("connection name is required (set reference/target or use --reference/--target)")
	}
	for i := range c.Connections {
		if strings.EqualFold(c.Connections[i].Name, name) {
			return &c.Connections[i], nil
		}
	}
	return nil, fmt.Errorf("connection %q not found in config", name)
}

func envPath(cfgFile string) string {
	if cfgFile == "" {
		return ".env"
	}
	return filepath.Join(filepath.Dir(cfgFile), ".env")
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue, ok := field.Tag.Lookup("default")
		if field.Type.Kind() == reflect.Slice {
			// lists come from the file or flags; an empty string default would
			// shadow the file value
			if ok && defaultValue != "" {
				v.SetDefault(key, strings.Split(defaultValue, ","))
			}
			continue
		}
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
